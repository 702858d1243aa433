package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Custom protocol extensions implemented by the managed Kotlin language
// server beyond standard LSP. They are only issued when the managed binary
// is in use; a custom server configured via languageServer.path may not
// implement them.

type jarClassContentsParams struct {
	URI DocumentURI `json:"uri"`
}

// JarClassContents fetches decompiled source for a kls: URI. This backs the
// content provider for documents inside archives.
func (c *Client) JarClassContents(ctx context.Context, uri DocumentURI) (string, error) {
	if !c.cfg.Managed {
		return "", ErrNotManaged
	}

	var content string
	if err := c.Call(ctx, "kotlin/jarClassContents", jarClassContentsParams{URI: uri}, &content); err != nil {
		return "", err
	}
	return content, nil
}

// ProvideContent serves document text for the custom kls scheme.
func (c *Client) ProvideContent(ctx context.Context, uri DocumentURI) (string, error) {
	if uri.Scheme() != SchemeKls {
		return "", fmt.Errorf("unsupported content scheme %q", uri.Scheme())
	}
	return c.JarClassContents(ctx, uri)
}

type overrideMemberParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// OverrideOption is one candidate member implementation the server offers
// at a position.
type OverrideOption struct {
	Title string          `json:"title"`
	Edit  json.RawMessage `json:"edit"`
}

// OverrideMembers lists members that can be overridden or implemented at the
// given position.
func (c *Client) OverrideMembers(ctx context.Context, uri DocumentURI, pos Position) ([]OverrideOption, error) {
	if !c.cfg.Managed {
		return nil, ErrNotManaged
	}

	params := overrideMemberParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Position:     pos,
	}
	var options []OverrideOption
	if err := c.Call(ctx, "kotlin/overrideMember", params, &options); err != nil {
		return nil, err
	}
	return options, nil
}

// MainClassInfo resolves a run/debug entry point for a file.
type MainClassInfo struct {
	MainClass   string `json:"mainClass"`
	ProjectRoot string `json:"projectRoot"`
}

type mainClassParams struct {
	URI DocumentURI `json:"uri"`
}

// MainClass asks the server for the main class backing the given file, used
// by run/debug entry-point resolution.
func (c *Client) MainClass(ctx context.Context, uri DocumentURI) (*MainClassInfo, error) {
	if !c.cfg.Managed {
		return nil, ErrNotManaged
	}

	var info MainClassInfo
	if err := c.Call(ctx, "kotlin/mainClass", mainClassParams{URI: uri}, &info); err != nil {
		return nil, err
	}
	if strings.TrimSpace(info.MainClass) == "" {
		return nil, fmt.Errorf("no main class found for %s", uri)
	}
	return &info, nil
}
