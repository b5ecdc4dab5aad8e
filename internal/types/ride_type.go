// README: Ride class enumeration shared by booking and fare modules.
package types

type RideType string

const (
	RideAuto    RideType = "AUTO"
	RideBike    RideType = "BIKE"
	RideCar     RideType = "CAR"
	RidePremium RideType = "PREMIUM"
)

// RideTypes lists every ride class in quote order.
var RideTypes = []RideType{RideAuto, RideBike, RideCar, RidePremium}

func (r RideType) Valid() bool {
	for _, t := range RideTypes {
		if t == r {
			return true
		}
	}
	return false
}
