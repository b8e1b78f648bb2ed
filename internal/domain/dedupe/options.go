package dedupe

// Option applies a configuration option to the deduper.
type Option func(*windowDeduper)

// WithMaxSize sets how many recent ids are remembered. Values <= 0 remember
// every id for the life of the process.
func WithMaxSize(maxSize int) Option {
	return func(d *windowDeduper) {
		d.maxSize = maxSize
	}
}
