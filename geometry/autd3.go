package geometry

// AUTD3 device layout constants.
const (
	AUTD3NumTransInX = 18
	AUTD3NumTransInY = 14
	// AUTD3NumTransInUnit is the number of populated transducers; three grid
	// positions are left empty for the mounting holes.
	AUTD3NumTransInUnit = AUTD3NumTransInX*AUTD3NumTransInY - 3
	// AUTD3TransSpacing is the pitch of the transducer grid in mm.
	AUTD3TransSpacing float32 = 10.16
	// AUTD3DeviceWidth is the board width in mm.
	AUTD3DeviceWidth float32 = 192.0
	// AUTD3DeviceHeight is the board height in mm.
	AUTD3DeviceHeight float32 = 151.4
)

func isMissingTransducer(x, y int) bool {
	return y == 1 && (x == 1 || x == 2 || x == 16)
}

// AUTD3 returns the DeviceSpec of a standard 249-transducer AUTD3 board at origin.
func AUTD3(origin Point3) DeviceSpec {
	trans := make([]Point3, 0, AUTD3NumTransInUnit)
	for y := 0; y < AUTD3NumTransInY; y++ {
		for x := 0; x < AUTD3NumTransInX; x++ {
			if isMissingTransducer(x, y) {
				continue
			}
			trans = append(trans, Point3{
				X: float32(x) * AUTD3TransSpacing,
				Y: float32(y) * AUTD3TransSpacing,
			})
		}
	}

	return DeviceSpec{Origin: origin, Transducers: trans}
}

// Grid returns a DeviceSpec with nx*ny transducers on a square pitch.
// It is mostly useful for small test geometries.
func Grid(origin Point3, nx, ny int, pitch float32) DeviceSpec {
	trans := make([]Point3, 0, nx*ny)
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			trans = append(trans, Point3{X: float32(x) * pitch, Y: float32(y) * pitch})
		}
	}

	return DeviceSpec{Origin: origin, Transducers: trans}
}
