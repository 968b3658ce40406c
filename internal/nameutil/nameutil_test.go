package nameutil

import "testing"

func TestValidateHostName(t *testing.T) {
	cases := []struct {
		host    string
		wantErr bool
	}{
		{"fuchsia", false},
		{"my-host", false},
		{"", true},
		{"-leading", true},
		{"trailing-", true},
		{"bad space", true},
	}
	for _, c := range cases {
		err := ValidateHostName(c.host)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateHostName(%q) error = %v, wantErr %v", c.host, err, c.wantErr)
		}
	}
}

func TestHostFullName(t *testing.T) {
	got := HostFullName("fuchsia")
	want := "fuchsia.local."
	if got.String() != want {
		t.Errorf("HostFullName() = %q, want %q", got, want)
	}
}

func TestValidateServiceName(t *testing.T) {
	cases := []struct {
		service string
		wantErr bool
	}{
		{"_test._tcp.local.", false},
		{"_test._udp.local", false},
		{"_test._sctp.local.", true},
		{"test._tcp.local.", true},
		{"_tcp.local.", true},
	}
	for _, c := range cases {
		err := ValidateServiceName(c.service)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateServiceName(%q) error = %v, wantErr %v", c.service, err, c.wantErr)
		}
	}
}

func TestInstanceFullNameRoundTrip(t *testing.T) {
	full := InstanceFullName("demo", "_test._tcp.local.")
	want := "demo._test._tcp.local."
	if full.String() != want {
		t.Fatalf("InstanceFullName() = %q, want %q", full, want)
	}

	instance, ok := SplitInstanceFullName(full, "_test._tcp.local.")
	if !ok {
		t.Fatalf("SplitInstanceFullName() ok = false, want true")
	}
	if instance != "demo" {
		t.Errorf("SplitInstanceFullName() = %q, want %q", instance, "demo")
	}
}

func TestSplitInstanceFullNameMismatch(t *testing.T) {
	full := InstanceFullName("demo", "_test._tcp.local.")
	if _, ok := SplitInstanceFullName(full, "_other._tcp.local."); ok {
		t.Errorf("expected mismatch to return ok = false")
	}
}

func TestSubtypeFullName(t *testing.T) {
	got := SubtypeFullName("printer", "_http._tcp.local.")
	want := "_printer._sub._http._tcp.local."
	if got.String() != want {
		t.Errorf("SubtypeFullName() = %q, want %q", got, want)
	}
}

func TestValidateInstanceNameAllowsSpacesAndUnicode(t *testing.T) {
	if err := ValidateInstanceName("Café Printer"); err != nil {
		t.Errorf("expected unicode instance name to validate, got %v", err)
	}
	if err := ValidateInstanceName(""); err == nil {
		t.Errorf("expected empty instance name to fail")
	}
}
