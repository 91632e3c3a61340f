package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
	"k8s.io/client-go/dynamic"
	k8sclient "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"

	"github.com/fluxcd/circles/pkg/cluster"
	"github.com/fluxcd/circles/pkg/cluster/kubernetes"
	"github.com/fluxcd/circles/pkg/config"
	"github.com/fluxcd/circles/pkg/daemon"
	"github.com/fluxcd/circles/pkg/execution"
	"github.com/fluxcd/circles/pkg/guard"
	daemonhttp "github.com/fluxcd/circles/pkg/http/daemon"
	"github.com/fluxcd/circles/pkg/job"
	"github.com/fluxcd/circles/pkg/module"
	"github.com/fluxcd/circles/pkg/notify"
	"github.com/fluxcd/circles/pkg/orchestrator"
	"github.com/fluxcd/circles/pkg/routing"
	"github.com/fluxcd/circles/pkg/store/sqlstore"
)

var version = "unversioned"

func usage(fs *pflag.FlagSet) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "DESCRIPTION\n")
		fmt.Fprintf(os.Stderr, "  circled deploys components to circles, and routes each circle's traffic to them.\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		fs.PrintDefaults()
	}
}

func loadConfig(v *viper.Viper, file string) (config.Config, error) {
	var cfg config.Config
	// Flags alone make a valid configuration.
	v.SetDefault("circlesConfigVersion", config.CirclesConfigVersion)
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return cfg, errors.Wrapf(err, "reading config file %s", file)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "decoding configuration")
	}
	return cfg, cfg.IsValid()
}

// newCluster connects to the cluster the configuration names. A
// failed ping is logged, not returned; the daemon can start before
// the API server is reachable.
func newCluster(cfg config.Config, logger log.Logger) (*kubernetes.Cluster, error) {
	restConfig, err := clientcmd.BuildConfigFromFlags("", cfg.Kubeconfig)
	if err != nil {
		return nil, errors.Wrap(err, "loading kubeconfig")
	}
	restConfig.QPS = float32(cfg.K8sQPS)
	restConfig.Burst = cfg.K8sBurst

	dynClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, errors.Wrap(err, "creating dynamic client")
	}
	coreClient, err := k8sclient.NewForConfig(restConfig)
	if err != nil {
		return nil, errors.Wrap(err, "creating core client")
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.K8sQPS), cfg.K8sBurst)
	k8s := kubernetes.NewCluster(dynClient, coreClient, cluster.NamespaceFilter{
		Allow: cfg.K8sAllowNamespace,
		Deny:  cfg.K8sDenyNamespace,
	}, limiter, logger)

	if err := k8s.Ping(); err != nil {
		logger.Log("ping", err)
	} else {
		logger.Log("ping", true, "host", restConfig.Host)
	}
	return k8s, nil
}

func main() {
	// Flag domain.
	fs := pflag.NewFlagSet("default", pflag.ExitOnError)
	fs.Usage = usage(fs)
	v := viper.New()

	bail := func(err error) {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
	defineConfigFlags(fs, v, bail)
	var (
		configFile  = fs.String("config-file", "", fmt.Sprintf("path to a YAML config file, e.g., %s/%s; flags given override it", config.ConfigPath, config.ConfigName))
		versionFlag = fs.Bool("version", false, "get version number")
	)
	fs.Parse(os.Args[1:])

	if *versionFlag {
		fmt.Println(version)
		os.Exit(0)
	}

	cfg, err := loadConfig(v, *configFile)
	if err != nil {
		bail(err)
	}

	// Logger domain.
	var logger log.Logger
	{
		switch cfg.LogFormat {
		case "json":
			logger = log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
		default:
			logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
		}
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}
	logger.Log("version", version)

	// client-go logs through klog; send it to the same place.
	{
		klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
		klog.InitFlags(klogFlags)
		klogFlags.Set("logtostderr", "false")
		klogFlags.Set("v", strconv.Itoa(cfg.K8sVerbosity))
		klog.SetOutput(log.NewStdlibAdapter(log.With(logger, "component", "kubernetes")))
	}

	// Cluster component.
	k8s, err := newCluster(cfg, log.With(logger, "component", "cluster"))
	if err != nil {
		logger.Log("component", "cluster", "err", err)
		os.Exit(1)
	}

	// Persistence component. Opened last, so nothing exits past the
	// deferred Close.
	var st *sqlstore.DatabaseStore
	{
		db, err := sqlstore.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
		if err != nil {
			logger.Log("component", "store", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		st = sqlstore.New(db)
		logger.Log("component", "store", "driver", cfg.DatabaseDriver)
	}

	shutdown := make(chan struct{})
	shutdownWg := &sync.WaitGroup{}
	jobs := job.NewQueue(shutdown, shutdownWg)

	// Pipeline domain.
	var d *daemon.Daemon
	{
		o := orchestrator.New(orchestrator.Deps{
			Store:   st,
			Tracker: execution.NewTracker(st, log.With(logger, "component", "tracker")),
			Reconciler: routing.NewReconciler(st, k8s, routing.Options{
				Gateways: cfg.RoutingGateways,
				Labels:   cfg.ObjectLabels,
			}, log.With(logger, "component", "routing")),
			Gateway:   k8s,
			Guard:     guard.New(st),
			Merger:    module.NewMerger(st, log.With(logger, "component", "modules")),
			Notifier:  notify.New(cfg.NotificationTimeout),
			Scheduler: jobs,
		}, orchestrator.Config{
			DefaultTimeout: cfg.DeploymentTimeout,
			PollInterval:   cfg.HealthPollInterval,
			Replicas:       int32(cfg.WorkloadReplicas),
			ContainerPort:  int32(cfg.WorkloadContainerPort),
			Labels:         cfg.ObjectLabels,
		}, log.With(logger, "component", "orchestrator"))

		d = &daemon.Daemon{
			V:            version,
			Orchestrator: o,
			Store:        st,
			Cluster:      k8s,
			Jobs:         jobs,
			Logger:       log.With(logger, "component", "daemon"),
			LoopVars: &daemon.LoopVars{
				SweepInterval: cfg.SweepInterval,
				Workers:       cfg.Workers,
			},
		}
		shutdownWg.Add(1)
		go d.Loop(shutdown, shutdownWg, log.With(logger, "component", "loop"))
	}

	// Mechanical stuff.
	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	// Transport domain.
	var server *http.Server
	{
		mux := http.NewServeMux()
		if cfg.ListenMetrics == "" {
			mux.Handle("/metrics", promhttp.Handler())
		} else {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", promhttp.Handler())
			go func() {
				logger.Log("addr", cfg.ListenMetrics, "serving", "/metrics")
				errc <- http.ListenAndServe(cfg.ListenMetrics, metricsMux)
			}()
		}
		mux.Handle("/", daemonhttp.NewHandler(d, daemonhttp.NewRouter()))
		server = &http.Server{Addr: cfg.Listen, Handler: mux}
		go func() {
			logger.Log("addr", cfg.Listen, "transport", "HTTP")
			errc <- server.ListenAndServe()
		}()
	}

	// Go!
	logger.Log("exiting", <-errc)
	server.Shutdown(context.Background())
	close(shutdown)
	shutdownWg.Wait()
}
