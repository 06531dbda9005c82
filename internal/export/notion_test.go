package export

import (
	"context"
	"strings"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockNotion implements notion.Client for publisher tests.
type mockNotion struct {
	mock.Mock
}

func (m *mockNotion) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *mockNotion) AppendBlocks(ctx context.Context, blockID string, req *notionapi.AppendBlockChildrenRequest) (*notionapi.AppendBlockChildrenResponse, error) {
	args := m.Called(ctx, blockID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.AppendBlockChildrenResponse), args.Error(1)
}

func TestPublishCreatesPage(t *testing.T) {
	sc, a := sampleAnalysis()
	mc := new(mockNotion)

	var captured *notionapi.PageCreateRequest
	mc.On("CreatePage", mock.Anything, mock.AnythingOfType("*notionapi.PageCreateRequest")).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*notionapi.PageCreateRequest)
		}).
		Return(&notionapi.Page{ID: "page-1", URL: "https://notion.so/page-1"}, nil)

	p := NewPublisher(mc, "parent-1")
	url, err := p.Publish(context.Background(), sc, a)
	require.NoError(t, err)
	assert.Equal(t, "https://notion.so/page-1", url)

	require.NotNil(t, captured)
	assert.Equal(t, notionapi.PageID("parent-1"), captured.Parent.PageID)
	assert.NotEmpty(t, captured.Children)
	mc.AssertExpectations(t)
}

func TestPublishRequiresReport(t *testing.T) {
	sc, a := sampleAnalysis()
	a.MarkdownReport = ""
	p := NewPublisher(new(mockNotion), "parent-1")
	_, err := p.Publish(context.Background(), sc, a)
	assert.Error(t, err)
}

func TestPublishAppendsOverflowBlocks(t *testing.T) {
	sc, a := sampleAnalysis()
	var b strings.Builder
	b.WriteString("# Report\n")
	for i := 0; i < 150; i++ {
		b.WriteString("\nParagraph content.\n")
	}
	a.MarkdownReport = b.String()

	mc := new(mockNotion)
	mc.On("CreatePage", mock.Anything, mock.AnythingOfType("*notionapi.PageCreateRequest")).
		Return(&notionapi.Page{ID: "page-1", URL: "https://notion.so/page-1"}, nil)
	mc.On("AppendBlocks", mock.Anything, "page-1", mock.AnythingOfType("*notionapi.AppendBlockChildrenRequest")).
		Return(&notionapi.AppendBlockChildrenResponse{}, nil)

	p := NewPublisher(mc, "parent-1")
	_, err := p.Publish(context.Background(), sc, a)
	require.NoError(t, err)
	mc.AssertCalled(t, "AppendBlocks", mock.Anything, "page-1", mock.AnythingOfType("*notionapi.AppendBlockChildrenRequest"))
}

func TestMarkdownBlocksStructure(t *testing.T) {
	blocks := markdownBlocks("# Title\n\n## Section\n\n### Sub\n\nParagraph one\ncontinues here.\n\n- first\n- second\n")

	require.Len(t, blocks, 6)
	assert.IsType(t, &notionapi.Heading1Block{}, blocks[0])
	assert.IsType(t, &notionapi.Heading2Block{}, blocks[1])
	assert.IsType(t, &notionapi.Heading3Block{}, blocks[2])

	para, ok := blocks[3].(*notionapi.ParagraphBlock)
	require.True(t, ok)
	assert.Equal(t, "Paragraph one continues here.", para.Paragraph.RichText[0].Text.Content)

	assert.IsType(t, &notionapi.BulletedListItemBlock{}, blocks[4])
	assert.IsType(t, &notionapi.BulletedListItemBlock{}, blocks[5])
}

func TestSplitTextRespectsLimit(t *testing.T) {
	long := strings.Repeat("word ", 1000)
	chunks := splitText(strings.TrimSpace(long), maxTextLen)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), maxTextLen)
		assert.NotEmpty(t, c)
	}
}

func TestSplitTextShortPassthrough(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitText("short", maxTextLen))
}
