// Package config loads the instance list and normalizes it into model.Instance
// values. The list is a JSON array of records. A document that does not start
// with '[' is read as YAML instead.
//
// A record looks like:
//
//	{"ip": "10.0.0.1", "ips": ["10.0.0.2"], "ports": [22, 8080]}
//
// "ip" and "ips" are both optional but at least one address must remain after
// merging. "ports" is required.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/treykane/alias-tunnel/internal/model"
	"github.com/treykane/alias-tunnel/internal/util"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingPorts means a record has no ports key.
	ErrMissingPorts = errors.New("missing ports")
	// ErrNoAddress means a record resolves to zero IPs.
	ErrNoAddress = errors.New("no ip address")
	// ErrInvalidPort means a port is outside 1-65535.
	ErrInvalidPort = errors.New("invalid port")
	// ErrNoInstances means the file holds an empty list.
	ErrNoInstances = errors.New("no instances configured")
)

// Record is one raw entry of the instance file. Pointers distinguish an
// absent key from an empty value.
type Record struct {
	IP    *string  `yaml:"ip" json:"ip,omitempty"`
	IPs   []string `yaml:"ips" json:"ips,omitempty"`
	Ports *[]int   `yaml:"ports" json:"ports,omitempty"`
}

// RecordError ties a normalization failure to the record that caused it.
type RecordError struct {
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("instance %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// LoadFile reads and normalizes the instance file at path.
func LoadFile(path string) ([]model.Instance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open instance file: %w", err)
	}
	defer f.Close()

	instances, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return instances, nil
}

// Load decodes a list of records from r and normalizes it.
func Load(r io.Reader) ([]model.Instance, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read instances: %w", err)
	}
	records, err := decode(b)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoInstances
	}
	return Normalize(records)
}

func decode(b []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return nil, ErrNoInstances
	}
	var records []Record
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("parse instances: %w", err)
		}
		return records, nil
	}
	if err := yaml.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("parse instances: %w", err)
	}
	return records, nil
}

// Normalize converts records to instances, one per record in record order.
// The IP list is the single ip followed by ips, with blanks and repeats
// dropped. Ports are kept verbatim.
func Normalize(records []Record) ([]model.Instance, error) {
	out := make([]model.Instance, 0, len(records))
	for i, rec := range records {
		inst, err := normalizeRecord(rec)
		if err != nil {
			return nil, &RecordError{Index: i, Err: err}
		}
		out = append(out, inst)
	}
	return out, nil
}

func normalizeRecord(rec Record) (model.Instance, error) {
	if rec.Ports == nil {
		return model.Instance{}, ErrMissingPorts
	}
	for _, p := range *rec.Ports {
		if err := util.ValidatePort(p); err != nil {
			return model.Instance{}, fmt.Errorf("%w: %v", ErrInvalidPort, err)
		}
	}

	ips := make([]string, 0, len(rec.IPs)+1)
	if rec.IP != nil {
		ips = append(ips, *rec.IP)
	}
	ips = append(ips, rec.IPs...)
	ips = util.UniqueOrdered(ips)
	if len(ips) == 0 {
		return model.Instance{}, ErrNoAddress
	}

	return model.Instance{
		IPs:   ips,
		Ports: append([]int(nil), *rec.Ports...),
	}, nil
}
