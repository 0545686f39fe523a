package geo

import "testing"

func TestZXYToTileIDZeroZoom(t *testing.T) {
	if id := ZXYToTileID(0, 0, 0); id != 0 {
		t.Errorf("ZXYToTileID(0,0,0) = %d, want 0", id)
	}
}

func TestZXYTileIDRoundTrip(t *testing.T) {
	for z := 0; z <= 7; z++ {
		n := 1 << uint(z)
		for x := 0; x < n; x++ {
			for y := 0; y < n; y++ {
				id := ZXYToTileID(z, x, y)
				gz, gx, gy := TileIDToZXY(id)
				if gz != z || gx != x || gy != y {
					t.Fatalf("round trip failed for z=%d x=%d y=%d: id=%d got z=%d x=%d y=%d", z, x, y, id, gz, gx, gy)
				}
			}
		}
	}
}

func TestZXYToTileIDInjective(t *testing.T) {
	seen := make(map[uint64]string)
	for z := 0; z <= 5; z++ {
		n := 1 << uint(z)
		for x := 0; x < n; x++ {
			for y := 0; y < n; y++ {
				id := ZXYToTileID(z, x, y)
				key := fmtZXY(z, x, y)
				if prev, ok := seen[id]; ok {
					t.Fatalf("collision at id=%d: %s and %s", id, prev, key)
				}
				seen[id] = key
			}
		}
	}
}

func TestLevelRangesDoNotOverlap(t *testing.T) {
	for z := 0; z <= 6; z++ {
		n := 1 << uint(z)
		minID := ZXYToTileID(z, 0, 0)
		maxID := minID
		for x := 0; x < n; x++ {
			for y := 0; y < n; y++ {
				id := ZXYToTileID(z, x, y)
				if id < minID {
					minID = id
				}
				if id > maxID {
					maxID = id
				}
			}
		}
		nextMin := ZXYToTileID(z+1, 0, 0)
		if maxID >= nextMin {
			t.Errorf("zoom %d range [?, %d] overlaps zoom %d start %d", z, maxID, z+1, nextMin)
		}
	}
}

func fmtZXY(z, x, y int) string {
	return string(rune('0'+z)) + "/" + itoa(x) + "/" + itoa(y)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
