package config

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/Vivek9454/FalconEye/internal/camera"
)

// Profile is one named set of camera endpoints. The same cameras are
// reachable on different URLs depending on where the server runs (LAN
// addresses at home, tunnel addresses elsewhere), so profiles are
// probed in order and the first responsive one wins.
type Profile struct {
	Name    string
	Cameras []camera.Config
}

// Config is the full server configuration.
type Config struct {
	HTTPAddr    string
	DataDir     string
	ClipDir     string
	DetectorURL string
	FaceWorker  string
	Profiles    []Profile
}

const probeTimeout = 2 * time.Second

// Load builds the configuration from environment variables over
// defaults. Call godotenv before this to pick up a .env file.
func Load() Config {
	cfg := Config{
		HTTPAddr:    getenv("FALCONEYE_ADDR", ":8080"),
		DataDir:     getenv("FALCONEYE_DATA_DIR", "data"),
		ClipDir:     getenv("FALCONEYE_CLIP_DIR", "clips"),
		DetectorURL: getenv("DETECTOR_URL", "http://localhost:8001"),
		FaceWorker:  os.Getenv("FACE_WORKER_CMD"),
		Profiles: []Profile{
			{
				Name: "home",
				Cameras: []camera.Config{
					{ID: "cam1", URL: getenv("CAM1_URL", "http://192.168.1.21/snapshot.jpg"), Kind: camera.KindSnapshot},
					{ID: "cam2", URL: getenv("CAM2_URL", "http://192.168.1.22:8081/stream"), Kind: camera.KindMJPEG},
				},
			},
			{
				Name: "remote",
				Cameras: []camera.Config{
					{ID: "cam1", URL: getenv("CAM1_REMOTE_URL", ""), Kind: camera.KindSnapshot},
					{ID: "cam2", URL: getenv("CAM2_REMOTE_URL", ""), Kind: camera.KindMJPEG},
				},
			},
		},
	}
	return cfg
}

// SelectProfile probes each profile in order and returns the first one
// with at least one reachable camera. When nothing answers, the first
// profile is returned so the server still starts and retries through
// the normal camera reconnect path.
func SelectProfile(profiles []Profile) Profile {
	client := &http.Client{Timeout: probeTimeout}

	for _, p := range profiles {
		for _, cam := range p.Cameras {
			if cam.URL == "" {
				continue
			}
			if probe(client, cam.URL) {
				log.Printf("[Config] Profile %q active (%s answered)", p.Name, cam.ID)
				return p
			}
		}
	}

	log.Printf("[Config] No camera profile reachable, defaulting to %q", profiles[0].Name)
	return profiles[0]
}

// probe checks whether a camera endpoint answers at all. Any HTTP
// response counts; MJPEG endpoints often reject HEAD but still prove
// reachability by answering.
func probe(client *http.Client, url string) bool {
	req, err := http.NewRequest(http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
