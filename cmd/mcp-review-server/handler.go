package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/glaucopicci/api-risa-goya/internal/podio"
	"github.com/glaucopicci/api-risa-goya/internal/review"
)

// ReviewItemParams defines the input parameters for the tool
type ReviewItemParams struct {
	ItemID int64 `json:"item_id" jsonschema:"The Podio item id to review"`
	DryRun bool  `json:"dry_run,omitempty" jsonschema:"Return the review without posting it as a comment"`
}

// reviewOutcome is the JSON text returned to the caller.
type reviewOutcome struct {
	ItemID    int64  `json:"item_id"`
	Review    string `json:"review"`
	Posted    bool   `json:"posted"`
	CommentID int64  `json:"comment_id,omitempty"`
}

// ItemReviewer runs the review relay outside of the webhook flow.
type ItemReviewer interface {
	Preview(ctx context.Context, itemID int64) (*review.Result, error)
	ReviewNow(ctx context.Context, itemID int64) (*review.Result, *podio.Comment, error)
}

// ReviewTool serves the review_item tool.
type ReviewTool struct {
	reviewer ItemReviewer
}

// NewReviewTool creates the tool handler.
func NewReviewTool(reviewer ItemReviewer) *ReviewTool {
	return &ReviewTool{reviewer: reviewer}
}

// Handle handles the review_item tool call
func (t *ReviewTool) Handle(
	ctx context.Context,
	req *mcp.CallToolRequest,
	params ReviewItemParams,
) (*mcp.CallToolResult, any, error) {
	if params.ItemID <= 0 {
		return nil, nil, errors.New("item_id parameter is required")
	}
	log.Info().Int64("item_id", params.ItemID).Bool("dry_run", params.DryRun).Msg("Received review_item request")

	outcome := reviewOutcome{ItemID: params.ItemID}
	if params.DryRun {
		result, err := t.reviewer.Preview(ctx, params.ItemID)
		if err != nil {
			return errorResult(params.ItemID, err), nil, nil
		}
		outcome.Review = result.Text
	} else {
		result, comment, err := t.reviewer.ReviewNow(ctx, params.ItemID)
		if err != nil {
			return errorResult(params.ItemID, err), nil, nil
		}
		outcome.Review = result.Text
		if comment != nil {
			outcome.Posted = true
			outcome.CommentID = comment.CommentID
		}
	}

	text, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(text)},
		},
	}, nil, nil
}

// errorResult reports a failed review as tool output so the caller can read it.
func errorResult(itemID int64, err error) *mcp.CallToolResult {
	log.Error().Err(err).Int64("item_id", itemID).Msg("review_item failed")
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Error: %v", err)},
		},
		IsError: true,
	}
}
