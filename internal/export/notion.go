package export

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scenariolab/foresight/internal/model"
	"github.com/scenariolab/foresight/pkg/notion"
)

// Notion caps rich text at 2000 characters and 100 blocks per request.
const (
	maxTextLen         = 2000
	maxBlocksPerCreate = 100
)

// Publisher publishes analysis reports as Notion pages under a parent page.
type Publisher struct {
	client   notion.Client
	parentID string
}

// NewPublisher creates a Publisher targeting the given parent page.
func NewPublisher(client notion.Client, parentID string) *Publisher {
	return &Publisher{client: client, parentID: parentID}
}

// Publish creates a page from the analysis report and returns its URL. The
// report markdown is converted block by block; blocks beyond the create
// limit are appended in follow-up requests.
func (p *Publisher) Publish(ctx context.Context, scenario *model.Scenario, analysis *model.Analysis) (string, error) {
	if analysis.MarkdownReport == "" {
		return "", eris.New("export: analysis has no report to publish")
	}

	blocks := markdownBlocks(analysis.MarkdownReport)
	first := blocks
	var rest []notionapi.Block
	if len(blocks) > maxBlocksPerCreate {
		first, rest = blocks[:maxBlocksPerCreate], blocks[maxBlocksPerCreate:]
	}

	page, err := p.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:   notionapi.ParentTypePageID,
			PageID: notionapi.PageID(p.parentID),
		},
		Properties: notionapi.Properties{
			"title": notionapi.TitleProperty{
				Type:  notionapi.PropertyTypeTitle,
				Title: richText("Scenario Analysis: " + scenario.Theme),
			},
		},
		Children: first,
	})
	if err != nil {
		return "", err
	}

	for len(rest) > 0 {
		chunk := rest
		if len(chunk) > maxBlocksPerCreate {
			chunk = chunk[:maxBlocksPerCreate]
		}
		rest = rest[len(chunk):]
		if _, err := p.client.AppendBlocks(ctx, string(page.ID), &notionapi.AppendBlockChildrenRequest{
			Children: chunk,
		}); err != nil {
			return "", err
		}
	}

	zap.L().Info("export: published report to notion",
		zap.String("analysis_id", analysis.ID),
		zap.String("page_id", string(page.ID)),
		zap.Int("blocks", len(blocks)),
	)
	return page.URL, nil
}

// markdownBlocks converts the report's markdown subset (headings, bullets,
// paragraphs) into Notion blocks. Long paragraphs are split to fit the rich
// text limit.
func markdownBlocks(markdown string) []notionapi.Block {
	var blocks []notionapi.Block
	var paragraph []string

	flush := func() {
		if len(paragraph) == 0 {
			return
		}
		text := strings.Join(paragraph, " ")
		paragraph = nil
		for _, chunk := range splitText(text, maxTextLen) {
			blocks = append(blocks, &notionapi.ParagraphBlock{
				BasicBlock: basicBlock(notionapi.BlockTypeParagraph),
				Paragraph:  notionapi.Paragraph{RichText: richText(chunk)},
			})
		}
	}

	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "### "):
			flush()
			blocks = append(blocks, &notionapi.Heading3Block{
				BasicBlock: basicBlock(notionapi.BlockTypeHeading3),
				Heading3:   notionapi.Heading{RichText: richText(trimHeading(line))},
			})
		case strings.HasPrefix(line, "## "):
			flush()
			blocks = append(blocks, &notionapi.Heading2Block{
				BasicBlock: basicBlock(notionapi.BlockTypeHeading2),
				Heading2:   notionapi.Heading{RichText: richText(trimHeading(line))},
			})
		case strings.HasPrefix(line, "# "):
			flush()
			blocks = append(blocks, &notionapi.Heading1Block{
				BasicBlock: basicBlock(notionapi.BlockTypeHeading1),
				Heading1:   notionapi.Heading{RichText: richText(trimHeading(line))},
			})
		case strings.HasPrefix(line, "- "):
			flush()
			blocks = append(blocks, &notionapi.BulletedListItemBlock{
				BasicBlock:       basicBlock(notionapi.BlockTypeBulletedListItem),
				BulletedListItem: notionapi.ListItem{RichText: richText(strings.TrimPrefix(line, "- "))},
			})
		default:
			paragraph = append(paragraph, line)
		}
	}
	flush()
	return blocks
}

func basicBlock(t notionapi.BlockType) notionapi.BasicBlock {
	return notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: t}
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: s},
	}}
}

func trimHeading(line string) string {
	return strings.TrimSpace(strings.TrimLeft(line, "# "))
}

// splitText breaks s into chunks of at most limit runes, preferring word
// boundaries.
func splitText(s string, limit int) []string {
	if len(s) <= limit {
		return []string{s}
	}
	var out []string
	runes := []rune(s)
	for len(runes) > 0 {
		n := limit
		if n > len(runes) {
			n = len(runes)
		} else {
			// Back up to the last space inside the window, if any.
			cut := n
			for cut > 0 && runes[cut-1] != ' ' {
				cut--
			}
			if cut > limit/2 {
				n = cut
			}
		}
		out = append(out, strings.TrimSpace(string(runes[:n])))
		runes = runes[n:]
	}
	return out
}
