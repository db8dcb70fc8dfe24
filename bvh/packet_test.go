package bvh

import (
	"testing"

	"github.com/wbrbr/tinybvh/vmath"
)

// gridPacket builds a 16x16 grid of rays from one shared origin along +z,
// fanning out slightly on x/y so the frustum corners (rays 0, 51, 204, 255) are
// distinct, as Intersect256Rays requires.
func gridPacket() []*Ray {
	rays := make([]*Ray, 256)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			idx := y*16 + x
			dx := (float32(x)/15 - 0.5) * 0.2
			dy := (float32(y)/15 - 0.5) * 0.2
			r := NewRay(vmath.XYZ(6, 6, -10), vmath.XYZ(dx, dy, 1), missT)
			rays[idx] = &r
		}
	}
	return rays
}

func TestIntersect256RaysMatchesPerRayIntersect(t *testing.T) {
	b, _ := buildScene()

	packet := gridPacket()
	b.Intersect256Rays(packet)

	reference := gridPacket()
	for _, r := range reference {
		b.Intersect(r, Wald32)
	}

	for i := range packet {
		if packet[i].Hit.Prim != reference[i].Hit.Prim {
			t.Fatalf("ray %d: packet hit prim %d, per-ray hit prim %d", i, packet[i].Hit.Prim, reference[i].Hit.Prim)
		}
	}
}

func TestIntersect256RaysRejectsWrongPacketSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic for a packet that isn't exactly 256 rays")
		}
	}()
	b, _ := buildScene()
	b.Intersect256Rays(make([]*Ray, 4))
}
