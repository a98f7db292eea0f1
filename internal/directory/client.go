// Package directory looks patients up in the external clinical directory
// before a monitoring event is registered.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"vigil/internal/platform/config"
	"vigil/pkg/platform/sentinel"
)

// Patient is the directory's view of a registered patient.
type Patient struct {
	PatientID string `json:"patient_id"`
	FullName  string `json:"full_name"`
}

// Directory resolves patient identifiers. Implementations return
// sentinel.ErrNotFound when the directory does not know the patient.
type Directory interface {
	Lookup(ctx context.Context, patientID string) (*Patient, error)
}

// HTTPDirectory queries the directory service over HTTP.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDirectory(cfg config.Directory) *HTTPDirectory {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPDirectory{
		baseURL: cfg.URL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDirectory) Lookup(ctx context.Context, patientID string) (*Patient, error) {
	endpoint := fmt.Sprintf("%s/patients/%s", d.baseURL, url.PathEscape(patientID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory lookup: %w", sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("patient %q: %w", patientID, sentinel.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("directory returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var patient Patient
	if err := json.NewDecoder(resp.Body).Decode(&patient); err != nil {
		return nil, fmt.Errorf("decode directory response: %w", err)
	}
	return &patient, nil
}

// StaticDirectory serves a fixed patient set for dev and tests. An empty set
// accepts every identifier, mirroring the mocked lookup used in development.
type StaticDirectory struct {
	patients map[string]Patient
}

func NewStaticDirectory(patients ...Patient) *StaticDirectory {
	if len(patients) == 0 {
		return &StaticDirectory{}
	}
	byID := make(map[string]Patient, len(patients))
	for _, p := range patients {
		byID[p.PatientID] = p
	}
	return &StaticDirectory{patients: byID}
}

func (d *StaticDirectory) Lookup(_ context.Context, patientID string) (*Patient, error) {
	if d.patients == nil {
		return &Patient{PatientID: patientID}, nil
	}
	if p, ok := d.patients[patientID]; ok {
		return &p, nil
	}
	return nil, fmt.Errorf("patient %q: %w", patientID, sentinel.ErrNotFound)
}
