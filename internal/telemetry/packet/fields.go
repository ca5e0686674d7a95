package packet

import "fmt"

// Kind is the wire type of a field.
type Kind uint8

const (
	KindUint8 Kind = iota
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindFloat32
)

// Size returns the field width in bytes.
func (k Kind) Size() int {
	switch k {
	case KindUint8:
		return 1
	case KindInt16, KindUint16:
		return 2
	default:
		return 4
	}
}

func (k Kind) String() string {
	switch k {
	case KindUint8:
		return "u8"
	case KindInt16:
		return "i16"
	case KindUint16:
		return "u16"
	case KindInt32:
		return "i32"
	case KindUint32:
		return "u32"
	case KindFloat32:
		return "f32"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Field describes one fixed-offset value in the frame. Ref returns a pointer
// into the frame whose type matches Kind.
type Field struct {
	Name   string
	Offset int
	Kind   Kind
	Ref    func(*Frame) any
}

// End returns the offset one past the last byte of the field.
func (f Field) End() int {
	return f.Offset + f.Kind.Size()
}

func f32(name string, off int, ref func(*Frame) *float32) Field {
	return Field{Name: name, Offset: off, Kind: KindFloat32, Ref: func(fr *Frame) any { return ref(fr) }}
}

func vec3(name string, off int, ref func(*Frame) *Vec3) []Field {
	return []Field{
		f32(name+".X", off, func(fr *Frame) *float32 { return &ref(fr).X }),
		f32(name+".Y", off+4, func(fr *Frame) *float32 { return &ref(fr).Y }),
		f32(name+".Z", off+8, func(fr *Frame) *float32 { return &ref(fr).Z }),
	}
}

func f32s(name string, off, n int, ref func(*Frame) []float32, label func(int) string) []Field {
	out := make([]Field, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, f32(fmt.Sprintf("%s[%s]", name, label(i)), off+4*i,
			func(fr *Frame) *float32 { return &ref(fr)[i] }))
	}
	return out
}

func wheelLabel(i int) string { return WheelNames[i] }
func indexLabel(i int) string { return fmt.Sprintf("%d", i) }

func scalar(name string, off int, kind Kind, ref func(*Frame) any) Field {
	return Field{Name: name, Offset: off, Kind: kind, Ref: ref}
}

// fieldTable is the complete, fixed frame layout. Offsets are from the start
// of the decrypted 296-byte buffer; all values are little-endian.
var fieldTable = func() []Field {
	var t []Field
	add := func(fs ...Field) { t = append(t, fs...) }

	add(scalar("Magic", 0x00, KindUint32, func(f *Frame) any { return &f.Magic }))
	add(vec3("Position", 0x04, func(f *Frame) *Vec3 { return &f.Position })...)
	add(vec3("Velocity", 0x10, func(f *Frame) *Vec3 { return &f.Velocity })...)
	add(vec3("Rotation", 0x1C, func(f *Frame) *Vec3 { return &f.Rotation })...)
	add(f32("NorthOrient", 0x28, func(f *Frame) *float32 { return &f.NorthOrient }))
	add(vec3("AngularVelocity", 0x2C, func(f *Frame) *Vec3 { return &f.AngularVelocity })...)
	add(f32("BodyHeight", 0x38, func(f *Frame) *float32 { return &f.BodyHeight }))
	add(f32("EngineRPM", 0x3C, func(f *Frame) *float32 { return &f.EngineRPM }))
	add(scalar("NonceSeed", 0x40, KindUint32, func(f *Frame) any { return &f.NonceSeed }))
	add(f32("FuelLevel", 0x44, func(f *Frame) *float32 { return &f.FuelLevel }))
	add(f32("FuelCapacity", 0x48, func(f *Frame) *float32 { return &f.FuelCapacity }))
	add(f32("SpeedMPS", 0x4C, func(f *Frame) *float32 { return &f.SpeedMPS }))
	add(f32("Boost", 0x50, func(f *Frame) *float32 { return &f.Boost }))
	add(f32("OilPressure", 0x54, func(f *Frame) *float32 { return &f.OilPressure }))
	add(f32("WaterTemp", 0x58, func(f *Frame) *float32 { return &f.WaterTemp }))
	add(f32("OilTemp", 0x5C, func(f *Frame) *float32 { return &f.OilTemp }))
	add(f32s("TireTemp", 0x60, 4, func(f *Frame) []float32 { return f.TireTemp[:] }, wheelLabel)...)

	add(scalar("PacketID", 0x70, KindInt32, func(f *Frame) any { return &f.PacketID }))
	add(scalar("CurrentLap", 0x74, KindInt16, func(f *Frame) any { return &f.CurrentLap }))
	add(scalar("TotalLaps", 0x76, KindInt16, func(f *Frame) any { return &f.TotalLaps }))
	add(scalar("BestLapMs", 0x78, KindInt32, func(f *Frame) any { return &f.BestLapMs }))
	add(scalar("LastLapMs", 0x7C, KindInt32, func(f *Frame) any { return &f.LastLapMs }))
	add(scalar("TimeOnTrackMs", 0x80, KindInt32, func(f *Frame) any { return &f.TimeOnTrackMs }))
	add(scalar("StartPosition", 0x84, KindInt16, func(f *Frame) any { return &f.StartPosition }))
	add(scalar("NumCars", 0x86, KindInt16, func(f *Frame) any { return &f.NumCars }))
	add(scalar("RevWarningRPM", 0x88, KindUint16, func(f *Frame) any { return &f.RevWarningRPM }))
	add(scalar("RevLimiterRPM", 0x8A, KindUint16, func(f *Frame) any { return &f.RevLimiterRPM }))
	add(scalar("EstimatedTopSpeed", 0x8C, KindInt16, func(f *Frame) any { return &f.EstimatedTopSpeed }))
	add(scalar("Flags", 0x8E, KindUint16, func(f *Frame) any { return &f.Flags }))
	add(scalar("Gears", 0x90, KindUint8, func(f *Frame) any { return &f.Gears }))
	add(scalar("Throttle", 0x91, KindUint8, func(f *Frame) any { return &f.Throttle }))
	add(scalar("Brake", 0x92, KindUint8, func(f *Frame) any { return &f.Brake }))

	add(vec3("RoadPlane", 0x94, func(f *Frame) *Vec3 { return &f.RoadPlane })...)
	add(f32("RoadPlaneDistance", 0xA0, func(f *Frame) *float32 { return &f.RoadPlaneDistance }))
	add(f32s("TireRPS", 0xA4, 4, func(f *Frame) []float32 { return f.TireRPS[:] }, wheelLabel)...)
	add(f32s("TireRadius", 0xB4, 4, func(f *Frame) []float32 { return f.TireRadius[:] }, wheelLabel)...)
	add(f32s("SuspensionHeight", 0xC4, 4, func(f *Frame) []float32 { return f.SuspensionHeight[:] }, wheelLabel)...)

	add(f32("ClutchPedal", 0xF4, func(f *Frame) *float32 { return &f.ClutchPedal }))
	add(f32("ClutchEngagement", 0xF8, func(f *Frame) *float32 { return &f.ClutchEngagement }))
	add(f32("GearboxRPM", 0xFC, func(f *Frame) *float32 { return &f.GearboxRPM }))
	add(f32("TransmissionTopSpeed", 0x100, func(f *Frame) *float32 { return &f.TransmissionTopSpeed }))
	add(f32s("GearRatios", 0x104, 8, func(f *Frame) []float32 { return f.GearRatios[:] }, indexLabel)...)
	add(scalar("CarCode", 0x124, KindInt32, func(f *Frame) any { return &f.CarCode }))
	return t
}()

// Fields returns a copy of the frame layout table.
func Fields() []Field {
	out := make([]Field, len(fieldTable))
	copy(out, fieldTable)
	return out
}
