package config

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Vivek9454/FalconEye/internal/camera"
)

func TestSelectProfilePicksFirstReachable(t *testing.T) {
	alive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer alive.Close()

	profiles := []Profile{
		{Name: "home", Cameras: []camera.Config{
			{ID: "cam1", URL: "http://127.0.0.1:1/none", Kind: camera.KindSnapshot},
		}},
		{Name: "remote", Cameras: []camera.Config{
			{ID: "cam1", URL: alive.URL, Kind: camera.KindSnapshot},
		}},
	}

	assert.Equal(t, "remote", SelectProfile(profiles).Name)
}

func TestSelectProfileAnyResponseCounts(t *testing.T) {
	// MJPEG endpoints commonly refuse HEAD; a 405 still proves the
	// camera is there.
	grumpy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer grumpy.Close()

	profiles := []Profile{
		{Name: "home", Cameras: []camera.Config{
			{ID: "cam2", URL: grumpy.URL, Kind: camera.KindMJPEG},
		}},
	}
	assert.Equal(t, "home", SelectProfile(profiles).Name)
}

func TestSelectProfileFallsBackToFirst(t *testing.T) {
	profiles := []Profile{
		{Name: "home", Cameras: []camera.Config{
			{ID: "cam1", URL: "http://127.0.0.1:1/none", Kind: camera.KindSnapshot},
		}},
		{Name: "remote", Cameras: []camera.Config{
			{ID: "cam1", URL: "", Kind: camera.KindSnapshot},
		}},
	}
	assert.Equal(t, "home", SelectProfile(profiles).Name)
}

func TestLoadHonorsEnvOverrides(t *testing.T) {
	t.Setenv("FALCONEYE_ADDR", ":9999")
	t.Setenv("CAM1_URL", "http://10.0.0.5/shot.jpg")

	cfg := Load()
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, "http://10.0.0.5/shot.jpg", cfg.Profiles[0].Cameras[0].URL)
}
