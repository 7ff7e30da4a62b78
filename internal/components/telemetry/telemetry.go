package telemetry

// API is what every component reports through. Tests swap in a Recorder to
// assert on what was reported.
type API interface {
	// ReportBroken reports a component that failed in a way someone should
	// look at. The id names the component and operation, lowercase, dashes
	// between words, ex. "session.query-debts". Details go in params or in the
	// wrapped error, never in the id.
	ReportBroken(id string, params ...any)
	// ReportWarning reports something unexpected that was recovered from, ex.
	// a registration whose debt query failed while the others succeeded.
	ReportWarning(id string, params ...any)
	// ReportDebug is dropped unless running verbose.
	ReportDebug(msg string, params ...any)
	// ReportCount reports a gauge sample, samples of the same id are not
	// summed.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with "<namespace>: ".
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) scoped(id string) string {
	return s.namespace + ": " + id
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.scoped(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.scoped(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.scoped(msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.scoped(id), count)
}
