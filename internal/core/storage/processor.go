package storage

import (
	"time"

	"github.com/volundmush/moonsilver/internal/core/systems"
	"github.com/volundmush/moonsilver/internal/core/world"
)

// ProcessorName is the registry name of the flush processor.
const ProcessorName = "persistence"

// FlushProcessor collects dirty persisted components at the end of every tick
// and hands them to the writer. Components of batches that failed to write are
// collected again.
type FlushProcessor struct {
	writer *Writer
}

func NewFlushProcessor(writer *Writer) *FlushProcessor {
	return &FlushProcessor{writer: writer}
}

func (p *FlushProcessor) Name() string               { return ProcessorName }
func (p *FlushProcessor) Priority() systems.Priority { return systems.PriorityPersist }

func (p *FlushProcessor) Process(w *world.World, _ time.Duration) error {
	p.writer.Reclaim()
	ps := collect(w)
	if len(ps) == 0 {
		return nil
	}
	if p.writer.enqueuePending(ps) {
		clearDirty(ps)
	}
	return nil
}

// Factory returns a registry factory for the flush processor.
func Factory(writer *Writer) systems.Factory {
	return func() (systems.Processor, error) { return NewFlushProcessor(writer), nil }
}
