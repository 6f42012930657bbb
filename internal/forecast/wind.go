package forecast

// windLookup extracts a wind speed from one payload shape.
type windLookup struct {
	name string
	get  func(Weather) *float64
}

// windLookups lists the accepted shapes in precedence order.
var windLookups = []windLookup{
	{name: "wind_speed", get: func(w Weather) *float64 { return w.WindSpeed }},
	{name: "wind.speed", get: func(w Weather) *float64 {
		if w.Wind == nil {
			return nil
		}
		return w.Wind.Speed
	}},
}

// Speed returns the first wind speed present in precedence order, or 0.
func (w Weather) Speed() float64 {
	v, _ := w.SpeedSource()
	return v
}

// SpeedSource is Speed plus the name of the field that supplied it
// ("" when none did).
func (w Weather) SpeedSource() (float64, string) {
	for _, l := range windLookups {
		if v := l.get(w); v != nil {
			return *v, l.name
		}
	}
	return 0, ""
}
