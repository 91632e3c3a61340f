package v1

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/circles/pkg/circle"
	fluxerr "github.com/fluxcd/circles/pkg/errors"
)

func validRequest() CreateDeploymentRequest {
	return CreateDeploymentRequest{
		AuthorID:      "author",
		CircleID:      "c1",
		Namespace:     "shop",
		CallbackURL:   "http://callbacks.example.com/deploy",
		DefaultCircle: true,
		Components: []ComponentRequest{{
			ComponentID: "comp-1",
			ModuleID:    "mod-1",
			Name:        "svc",
			ImageURL:    "quay.io/acme/svc",
			ImageTag:    "v1",
		}},
	}
}

func TestValidRequest(t *testing.T) {
	r := validRequest()
	require.NoError(t, r.Validate())

	body, err := json.Marshal(r)
	require.NoError(t, err)
	require.NoError(t, ValidateCreateDeployment(body))
}

func TestInvalidRequests(t *testing.T) {
	for name, mutate := range map[string]func(*CreateDeploymentRequest){
		"no components":       func(r *CreateDeploymentRequest) { r.Components = nil },
		"empty components":    func(r *CreateDeploymentRequest) { r.Components = []ComponentRequest{} },
		"no author":           func(r *CreateDeploymentRequest) { r.AuthorID = "" },
		"no circle":           func(r *CreateDeploymentRequest) { r.CircleID = "" },
		"callback not a URL":  func(r *CreateDeploymentRequest) { r.CallbackURL = "not a url" },
		"namespace not label": func(r *CreateDeploymentRequest) { r.Namespace = "Shop_Front" },
		"negative timeout":    func(r *CreateDeploymentRequest) { r.TimeoutInSeconds = -5 },
		"component no image":  func(r *CreateDeploymentRequest) { r.Components[0].ImageURL = "" },
	} {
		t.Run(name, func(t *testing.T) {
			r := validRequest()
			mutate(&r)
			err := r.Validate()
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.True(t, fluxerr.IsUser(err))
		})
	}
}

func TestValidateBodyMissingFields(t *testing.T) {
	err := ValidateCreateDeployment([]byte(`{"circleId": "c1", "components": []}`))
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "authorId")

	err = ValidateCreateDeployment([]byte(`{not json`))
	assert.True(t, IsValidationError(err))
}

func TestRequestDeployment(t *testing.T) {
	r := validRequest()
	r.DeploymentID = "d1"
	r.TimeoutInSeconds = 30
	r.Components[0].HostValue = "svc.example.com"

	want := circle.Deployment{
		ID:               "d1",
		AuthorID:         "author",
		CircleID:         "c1",
		Namespace:        "shop",
		CallbackURL:      "http://callbacks.example.com/deploy",
		DefaultCircle:    true,
		TimeoutInSeconds: 30,
		Components: []circle.Component{{
			ID:        "comp-1",
			ModuleID:  "mod-1",
			Name:      "svc",
			ImageURL:  "quay.io/acme/svc",
			ImageTag:  "v1",
			HostValue: "svc.example.com",
		}},
	}
	if diff := cmp.Diff(want, r.Deployment()); diff != "" {
		t.Errorf("unexpected deployment (-want +got):\n%s", diff)
	}
}
