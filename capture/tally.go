package capture

import "github.com/zsiec/aqueduct/media"

// TallySource emits tally documents for a named source, alternating
// program state each emission so downstream tally lights have something
// to show during testing.
type TallySource struct {
	source string
	count  uint64
}

// NewTallySource creates a tally metadata source.
func NewTallySource(source string) *TallySource {
	return &TallySource{source: source}
}

// Next implements MetadataSource. It never ends.
func (t *TallySource) Next() (*media.MetadataFrame, error) {
	frame, err := media.TallyMetadata(media.Tally{
		OnProgram: t.count%2 == 0,
		OnPreview: t.count%2 == 1,
		Source:    t.source,
	})
	if err != nil {
		return nil, err
	}
	t.count++
	return frame, nil
}
