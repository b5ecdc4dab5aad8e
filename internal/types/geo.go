// README: Common geo value objects used across modules.
package types

import "fmt"

type Point struct {
	Lat float64
	Lng float64
}

// String renders the point as "lat,lng", the form accepted by routing APIs.
func (p Point) String() string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}
