// Package units provides the unit conversions applied to simulator values
package units

// Conversion factors
const (
	MPSToKPH     = 3.6      // m/s to km/h
	KPHToMPH     = 0.621371 // km/h to mph
	MetersToMM   = 1000.0   // m to mm
	StandardGrav = 9.81     // m/s² per g
)

// MPSToKPHValue converts metres per second to kilometres per hour.
func MPSToKPHValue(mps float64) float64 {
	return mps * MPSToKPH
}

// KPHToMPHValue converts kilometres per hour to miles per hour.
func KPHToMPHValue(kph float64) float64 {
	return kph * KPHToMPH
}

// MetersToMillimeters converts metres to millimetres.
func MetersToMillimeters(m float64) float64 {
	return m * MetersToMM
}

// AccelToG converts an acceleration in m/s² to multiples of g.
func AccelToG(accel float64) float64 {
	return accel / StandardGrav
}
