package era5

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/fhs/go-netcdf/netcdf"
)

// createERA5Fixture writes a minimal ERA5-style file: descending
// latitudes, a "time" axis in hours since 1900, and one packed variable.
func createERA5Fixture(t *testing.T, path string) {
	t.Helper()
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	if err != nil {
		t.Fatalf("create nc: %v", err)
	}
	defer f.Close()

	timeDim, _ := f.AddDim("time", 2)
	latDim, _ := f.AddDim("latitude", 2)
	lonDim, _ := f.AddDim("longitude", 3)

	vtime, _ := f.AddVar("time", netcdf.INT, []netcdf.Dim{timeDim})
	vlat, _ := f.AddVar("latitude", netcdf.DOUBLE, []netcdf.Dim{latDim})
	vlon, _ := f.AddVar("longitude", netcdf.DOUBLE, []netcdf.Dim{lonDim})
	vt2m, _ := f.AddVar("t2m", netcdf.SHORT, []netcdf.Dim{timeDim, latDim, lonDim})

	if err := vtime.Attr("units").WriteBytes([]byte("hours since 1900-01-01 00:00:00.0")); err != nil {
		t.Fatalf("write units: %v", err)
	}
	if err := vt2m.Attr("scale_factor").WriteFloat64s([]float64{0.5}); err != nil {
		t.Fatalf("write scale: %v", err)
	}
	if err := vt2m.Attr("add_offset").WriteFloat64s([]float64{250.0}); err != nil {
		t.Fatalf("write offset: %v", err)
	}
	if err := vt2m.Attr("_FillValue").WriteInt16s([]int16{-32767}); err != nil {
		t.Fatalf("write fill: %v", err)
	}

	if err := f.EndDef(); err != nil {
		t.Fatalf("enddef: %v", err)
	}

	// 2024-06-01 00:00 and 12:00 UTC in hours since 1900-01-01.
	base := int32(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC).Sub(
		time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)).Hours())
	if err := vtime.WriteInt32s([]int32{base, base + 12}); err != nil {
		t.Fatalf("write time: %v", err)
	}
	// Descending latitudes, as ERA5 delivers them.
	if err := vlat.WriteFloat64s([]float64{40.1, 40.0}); err != nil {
		t.Fatalf("write lat: %v", err)
	}
	if err := vlon.WriteFloat64s([]float64{-3.2, -3.1, -3.0}); err != nil {
		t.Fatalf("write lon: %v", err)
	}
	// Packed values; one fill cell at (t=0, lat=40.1, lon=-3.0).
	if err := vt2m.WriteInt16s([]int16{
		0, 2, -32767,
		4, 6, 8,
		10, 12, 14,
		16, 18, 20,
	}); err != nil {
		t.Fatalf("write t2m: %v", err)
	}
}

func TestOpenCanonicalizesAxes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "era5.nc")
	createERA5Fixture(t, path)

	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	g := d.Grid()
	if g.Lats[0] != 40.0 || g.Lats[1] != 40.1 {
		t.Errorf("lats not ascending: %v", g.Lats)
	}
	if g.Lons[0] != -3.2 || g.Lons[2] != -3.0 {
		t.Errorf("lons = %v", g.Lons)
	}

	times := d.Times()
	if len(times) != 2 {
		t.Fatalf("time count = %d", len(times))
	}
	want := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if !times[1].Equal(want) {
		t.Errorf("times[1] = %v, want %v", times[1], want)
	}

	if !d.HasVariable("t2m") {
		t.Error("t2m not found")
	}
	if d.HasVariable("swvl1") {
		t.Error("phantom variable found")
	}
	if vars := d.Variables(); len(vars) != 1 || vars[0] != "t2m" {
		t.Errorf("Variables() = %v, want [t2m]", vars)
	}
}

func TestReadCubeUnpacksAndAligns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "era5.nc")
	createERA5Fixture(t, path)

	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	cube, err := d.ReadCube("t2m")
	if err != nil {
		t.Fatalf("ReadCube: %v", err)
	}

	// Latitude flip: canonical row 0 is lat 40.0, which was raw row 1.
	// Raw (t=0, row=1) packed values {4, 6, 8} -> *0.5 + 250.
	if got := cube.Values[0][0][0]; got != 252.0 {
		t.Errorf("value[0][0][0] = %v, want 252.0", got)
	}
	// Raw fill at (t=0, raw row 0, col 2) lands at canonical row 1.
	if !math.IsNaN(cube.Values[0][1][2]) {
		t.Errorf("fill cell = %v, want NaN", cube.Values[0][1][2])
	}
	if got := cube.Values[1][1][0]; got != 258.0 {
		t.Errorf("value[1][1][0] = %v, want 258.0", got)
	}
}

func TestReadCubeMissingVariable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "era5.nc")
	createERA5Fixture(t, path)

	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	if _, err := d.ReadCube("tp"); err == nil {
		t.Error("expected error for absent variable")
	}
}

func TestDecodeTimes(t *testing.T) {
	tests := []struct {
		name    string
		raw     []float64
		units   string
		varName string
		want    time.Time
	}{
		{
			name: "hours since 1900",
			raw: []float64{time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC).Sub(
				time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)).Hours()},
			units: "hours since 1900-01-01 00:00:00.0", varName: "time",
			want:  time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "seconds since epoch default",
			raw:  []float64{1717200000}, units: "", varName: "valid_time",
			want: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "days",
			raw:  []float64{1}, units: "days since 2024-01-01", varName: "time",
			want: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		got, err := decodeTimes(tt.raw, tt.units, tt.varName)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if !got[0].Equal(tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, got[0], tt.want)
		}
	}

	if _, err := decodeTimes([]float64{0}, "fortnights since 1900-01-01", "time"); err == nil {
		t.Error("expected error for unsupported units")
	}
}
