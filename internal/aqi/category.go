package aqi

// Category is the health band an AQI value falls into.
type Category string

const (
	CategoryUnknown                     Category = "N/A"
	CategoryGood                        Category = "Good"
	CategoryModerate                    Category = "Moderate"
	CategoryUnhealthyForSensitiveGroups Category = "Unhealthy for Sensitive Groups"
	CategoryUnhealthy                   Category = "Unhealthy"
	CategoryVeryUnhealthy               Category = "Very Unhealthy"
	CategoryHazardous                   Category = "Hazardous"
)

// AlertThreshold is the highest index that does not raise a health alert.
const AlertThreshold = 100

// CategoryOf maps an AQI value to its band. Absent values are CategoryUnknown.
func CategoryOf(v Value) Category {
	i, ok := v.Int()
	switch {
	case !ok:
		return CategoryUnknown
	case i <= 50:
		return CategoryGood
	case i <= 100:
		return CategoryModerate
	case i <= 150:
		return CategoryUnhealthyForSensitiveGroups
	case i <= 200:
		return CategoryUnhealthy
	case i <= 300:
		return CategoryVeryUnhealthy
	default:
		return CategoryHazardous
	}
}

// Advice returns a one-line health message for the value's band.
func Advice(v Value) string {
	switch CategoryOf(v) {
	case CategoryGood:
		return "Enjoy your day!"
	case CategoryModerate:
		return "Air quality is acceptable for most individuals."
	case CategoryUnhealthyForSensitiveGroups:
		return "Members of sensitive groups may experience health effects."
	case CategoryUnhealthy:
		return "Air quality is currently unhealthy. Limit outdoor exposure."
	case CategoryVeryUnhealthy:
		return "Health alert: everyone may experience more serious health effects."
	case CategoryHazardous:
		return "Hazardous conditions. Remain indoors and keep activity levels low."
	default:
		return "No data available."
	}
}

// IsAlert reports whether v is above AlertThreshold.
func IsAlert(v Value) bool {
	i, ok := v.Int()
	return ok && i > AlertThreshold
}
