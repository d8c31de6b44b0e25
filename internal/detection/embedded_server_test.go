package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestEmbeddedServer_Detect(t *testing.T) {
	srv := NewEmbeddedServer(EmbeddedServerConfig{
		Predictions: []Prediction{
			{BBox: [4]float64{1, 2, 3, 4}, Class: "cat", Score: 0.7},
		},
	})
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/load", bytes.NewBufferString(`{"base":"mobilenet_v1"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /load, got %d", rec.Code)
	}

	var loaded struct {
		Success bool   `json:"success"`
		ModelID string `json:"model_id"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &loaded)
	if !loaded.Success || loaded.ModelID == "" {
		t.Fatalf("Unexpected load response: %s", rec.Body.String())
	}

	body, _ := json.Marshal(map[string]string{
		"model_id":   loaded.ModelID,
		"camera_id":  "cam1",
		"image_data": "aGVsbG8=",
	})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/detect", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /detect, got %d: %s", rec.Code, rec.Body.String())
	}

	var detected struct {
		Success     bool `json:"success"`
		Predictions []struct {
			Class string `json:"class"`
		} `json:"predictions"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &detected)
	if !detected.Success || len(detected.Predictions) != 1 || detected.Predictions[0].Class != "cat" {
		t.Errorf("Unexpected detect response: %s", rec.Body.String())
	}
}

func TestEmbeddedServer_DetectUnknownModel(t *testing.T) {
	srv := NewEmbeddedServer(EmbeddedServerConfig{})

	body := `{"model_id":"nope","camera_id":"cam1","image_data":"aGVsbG8="}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/detect", bytes.NewBufferString(body)))

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestEmbeddedServer_InvalidImage(t *testing.T) {
	srv := NewEmbeddedServer(EmbeddedServerConfig{})
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/load", bytes.NewBufferString(`{}`)))
	var loaded struct {
		ModelID string `json:"model_id"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &loaded)

	body, _ := json.Marshal(map[string]string{"model_id": loaded.ModelID, "image_data": "%%%"})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/detect", bytes.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestEmbeddedServer_StartStop(t *testing.T) {
	srv := NewEmbeddedServer(EmbeddedServerConfig{})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	client, err := NewClient(ClientConfig{Address: srv.Address(), Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	status, err := client.GetStatus(context.Background())
	if err != nil || !status.Connected {
		t.Errorf("Expected connected status, got %+v (%v)", status, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
