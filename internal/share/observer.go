package share

// Observer receives lifecycle events, typically to export metrics.
type Observer interface {
	ShareCreated(category string, sizeBytes int64)
	ShareRetrieved(found bool)
	ShareDeleted(reason string)
	SweepFinished(report SweepReport)
	SweepSkipped()
}

type noopObserver struct{}

func (noopObserver) ShareCreated(string, int64) {}
func (noopObserver) ShareRetrieved(bool) {}
func (noopObserver) ShareDeleted(string) {}
func (noopObserver) SweepFinished(SweepReport) {}
func (noopObserver) SweepSkipped() {}
