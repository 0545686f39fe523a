package postgis

import (
	"testing"

	"github.com/Masterminds/semver/v3"
)

func TestMinimumVersionThresholds(t *testing.T) {
	v11 := mustVersion(t, "11.0.0")
	v12 := mustVersion(t, "12.0.0")
	v30 := mustVersion(t, "3.0.0")
	v31 := mustVersion(t, "3.1.0")

	if v11.LessThan(minPostgresVersion) {
		t.Error("11.0.0 should meet the minimum postgres version")
	}
	if v12.LessThan(minPostgresVersion) {
		t.Error("12.0.0 should meet the minimum postgres version")
	}
	if v30.LessThan(minPostGISVersion) {
		t.Error("3.0.0 should meet the minimum postgis version")
	}
	if v31.LessThan(tileMarginVersion) {
		t.Error("3.1.0 should meet the tile margin version")
	}
	if !v30.LessThan(tileMarginVersion) {
		t.Error("3.0.0 should NOT meet the tile margin version")
	}
}

func TestServerVersionPatternExtractsMajorMinor(t *testing.T) {
	m := serverVersionPattern.FindStringSubmatch("14.5 (Debian 14.5-1)")
	if m == nil || m[1] != "14" || m[2] != "5" {
		t.Errorf("unexpected match: %#v", m)
	}
}

func TestPostGISVersionPatternExtractsFullVersion(t *testing.T) {
	m := postgisVersionPattern.FindStringSubmatch("3.4.2 USE_GEOS=1 USE_PROJ=1")
	if m == nil || m[1] != "3.4.2" {
		t.Errorf("unexpected match: %#v", m)
	}
}

func mustVersion(t *testing.T, s string) *semver.Version {
	t.Helper()
	v, err := semver.NewVersion(s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}
