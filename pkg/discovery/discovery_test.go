package discovery

import "testing"

func TestParseInstance(t *testing.T) {
	cases := []struct {
		value string
		want  string
	}{
		{"10.0.0.4:5000", "http://10.0.0.4:5000"},
		{"https://catalog.internal/api/", "https://catalog.internal/api"},
		{"catalog.internal", "http://catalog.internal"},
		{"[::1]:8080", "http://[::1]:8080"},
	}
	for _, tc := range cases {
		if got := parseInstance("catalog", tc.value).BaseURL(); got != tc.want {
			t.Errorf("BaseURL(%q) = %q, want %q", tc.value, got, tc.want)
		}
	}
}

func TestKeys(t *testing.T) {
	inst := &ServiceInstance{Name: "storefront", Host: "0.0.0.0", Port: 8080}
	if got := instanceKey("/services/", inst); got != "/services/storefront/0.0.0.0:8080" {
		t.Errorf("instance key = %q", got)
	}
	if got := serviceKey("/services/", "catalog"); got != "/services/catalog/" {
		t.Errorf("service key = %q", got)
	}
	if inst.addr() != "0.0.0.0:8080" {
		t.Errorf("addr = %q", inst.addr())
	}
}
