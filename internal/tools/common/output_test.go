package common

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"testing"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	fn()
	_ = w.Close()
	os.Stdout = orig

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, r); err != nil {
		t.Fatalf("read output: %v", err)
	}
	_ = r.Close()
	return buf.String()
}

func TestPrintCIResultFailure(t *testing.T) {
	raw := captureStdout(t, func() {
		PrintCIResult(false, "migrate up", []string{"0001_users", "0002_sessions"}, errors.New("dial tcp: connection refused"))
	})

	var got CIResult
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("unmarshal output: %v; raw=%q", err, raw)
	}
	if got.OK {
		t.Fatal("expected ok=false")
	}
	if got.Title != "migrate up" || got.Error != "dial tcp: connection refused" {
		t.Fatalf("unexpected ci result: %+v", got)
	}
	if len(got.Details) != 2 || got.Details[1] != "0002_sessions" {
		t.Fatalf("unexpected details: %v", got.Details)
	}
}

func TestPrintCIResultSuccessOmitsError(t *testing.T) {
	raw := captureStdout(t, func() {
		PrintCIResult(true, "session sweep", []string{"revoked 12 expired sessions"}, nil)
	})

	if bytes.Contains([]byte(raw), []byte(`"error"`)) {
		t.Fatalf("success output must omit the error field: %q", raw)
	}
	var got CIResult
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("unmarshal output: %v; raw=%q", err, raw)
	}
	if !got.OK || got.Title != "session sweep" {
		t.Fatalf("unexpected ci result: %+v", got)
	}
}
