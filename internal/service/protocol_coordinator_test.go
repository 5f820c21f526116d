package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gestao-docs-api/internal/models"
	"github.com/noah-isme/gestao-docs-api/internal/repository"
	appErrors "github.com/noah-isme/gestao-docs-api/pkg/errors"
)

type stubMinter struct {
	next  int64
	calls int
	fail  bool
}

func (m *stubMinter) IncrementAndGet(context.Context, models.CounterScope) (int64, bool) {
	m.calls++
	if m.fail {
		return 0, false
	}
	m.next++
	return m.next, true
}

func newOficio() *models.ProtocolDocument {
	return &models.ProtocolDocument{
		Kind:     models.DocumentOfficialLetter,
		SectorID: "s1",
		Year:     2024,
		Sequence: 3,
		Protocol: "003/2024",
		Content:  models.DocumentContent{LeftBlockText: "Ofício nº 003/2024 - GAB"},
	}
}

func duplicate() error {
	return fmt.Errorf("create document: %w", repository.ErrDuplicateProtocol)
}

func TestSaveRetriesWithFreshProtocol(t *testing.T) {
	minter := &stubMinter{next: 3}
	coord := NewProtocolCoordinator(minter, 3, NewMetricsService(), nil)
	doc := newOficio()

	var written []string
	err := coord.Save(context.Background(), doc, func(context.Context) error {
		written = append(written, doc.Protocol)
		if len(written) == 1 {
			return duplicate()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"003/2024", "004/2024"}, written)
	assert.Equal(t, int64(4), doc.Sequence)
	assert.Equal(t, "Ofício nº 004/2024 - GAB", doc.Content.LeftBlockText)
}

func TestSaveStopsAfterThreeWrites(t *testing.T) {
	minter := &stubMinter{next: 3}
	coord := NewProtocolCoordinator(minter, 3, nil, nil)
	doc := newOficio()

	writes := 0
	violations := 4
	err := coord.Save(context.Background(), doc, func(context.Context) error {
		writes++
		if violations > 0 {
			violations--
			return duplicate()
		}
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrProtocolExhausted))
	assert.Equal(t, 3, writes)
	assert.Equal(t, 2, minter.calls)
}

func TestSaveDoesNotRetryOtherErrors(t *testing.T) {
	minter := &stubMinter{}
	coord := NewProtocolCoordinator(minter, 3, nil, nil)
	boom := appErrors.Clone(appErrors.ErrForbidden, "no permission")

	writes := 0
	err := coord.Save(context.Background(), newOficio(), func(context.Context) error {
		writes++
		return boom
	})
	assert.Same(t, boom, err)
	assert.Equal(t, 1, writes)
	assert.Zero(t, minter.calls)
}

func TestSaveFailsWhenMintFails(t *testing.T) {
	minter := &stubMinter{fail: true}
	coord := NewProtocolCoordinator(minter, 3, nil, nil)

	writes := 0
	err := coord.Save(context.Background(), newOficio(), func(context.Context) error {
		writes++
		return duplicate()
	})
	assert.True(t, errors.Is(err, appErrors.ErrUnavailable))
	assert.Equal(t, 1, writes)
}

func TestApplyProtocolDefaultsHeading(t *testing.T) {
	doc := &models.ProtocolDocument{Kind: models.DocumentPerDiem, Year: 2024}
	doc.ApplyProtocol(7, models.FormatProtocol(7, 2024))
	assert.Equal(t, "Solicitação de Diária nº 007/2024", doc.Content.LeftBlockText)
}

func TestApplyProtocolKeepsClientHeading(t *testing.T) {
	doc := &models.ProtocolDocument{Kind: models.DocumentOfficialLetter, Year: 2024}
	doc.Content.LeftBlockText = "- GAB/SEMAD"
	doc.ApplyProtocol(3, models.FormatProtocol(3, 2024))
	assert.Equal(t, "Ofício nº 003/2024 - GAB/SEMAD", doc.Content.LeftBlockText)

	// a re-mint keeps the suffix
	doc.ApplyProtocol(4, models.FormatProtocol(4, 2024))
	assert.Equal(t, "Ofício nº 004/2024 - GAB/SEMAD", doc.Content.LeftBlockText)

	custom := &models.ProtocolDocument{Kind: models.DocumentOfficialLetter, Year: 2024}
	custom.Content.LeftBlockText = "OF. CIRCULAR {protocolo} - SEMED"
	custom.ApplyProtocol(9, models.FormatProtocol(9, 2024))
	assert.Equal(t, "OF. CIRCULAR 009/2024 - SEMED", custom.Content.LeftBlockText)
	custom.ApplyProtocol(10, models.FormatProtocol(10, 2024))
	assert.Equal(t, "OF. CIRCULAR 010/2024 - SEMED", custom.Content.LeftBlockText)
}
