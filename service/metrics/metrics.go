package metrics

type Metrics interface {
	// BumpTime wrap prometheus histogram for measuring func time
	BumpTime(key string, tags ...string) (Endable, error)

	// BumpCount wrap prometheus counter for key counting, like request count
	BumpCount(key string, val float64, tags ...string) error

	// SetGauge wrap prometheus gauge for point-in-time values, like queue length
	SetGauge(key string, val float64, tags ...string) error
}

type Endable interface {
	// End close the timer
	End()
}
