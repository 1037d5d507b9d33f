package tradeclient

// FetchError reports a failed order book fetch. The message is fixed; the
// fields carry the detail for logs.
type FetchError struct {
	Asset      string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	return "Failed to fetch orderbook"
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
