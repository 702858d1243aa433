package lsp

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// DocumentURI is an LSP document URI.
type DocumentURI string

// URI schemes the client serves documents under.
const (
	// SchemeFile is the ordinary on-disk scheme.
	SchemeFile = "file"
	// SchemeKls addresses decompiled class contents inside archives,
	// served through the jarClassContents extension.
	SchemeKls = "kls"
)

// Scheme returns the URI's scheme, or "" if it has none.
func (u DocumentURI) Scheme() string {
	s := string(u)
	i := strings.Index(s, ":")
	if i < 0 {
		return ""
	}
	return s[:i]
}

// FilePathToURI converts an absolute file path to a file URI.
func FilePathToURI(path string) DocumentURI {
	return DocumentURI("file://" + filepath.ToSlash(path))
}

// DocumentFilter matches documents by language id and URI scheme.
type DocumentFilter struct {
	Language string `json:"language"`
	Scheme   string `json:"scheme"`
}

// DocumentSelector is the set of filters this client claims documents for.
type DocumentSelector []DocumentFilter

// DefaultSelector covers Kotlin sources on disk and decompiled archive
// contents under the kls scheme.
func DefaultSelector() DocumentSelector {
	return DocumentSelector{
		{Language: "kotlin", Scheme: SchemeFile},
		{Language: "kotlin", Scheme: SchemeKls},
	}
}

// Matches reports whether a document with the given language id and URI is
// claimed by the selector.
func (s DocumentSelector) Matches(languageID string, uri DocumentURI) bool {
	for _, f := range s {
		if f.Language == languageID && f.Scheme == uri.Scheme() {
			return true
		}
	}
	return false
}

// --- Initialize handshake ---

// InitializeParams is the payload of the initialize request.
type InitializeParams struct {
	ProcessID             int                `json:"processId"`
	RootURI               DocumentURI        `json:"rootUri,omitempty"`
	Capabilities          ClientCapabilities `json:"capabilities"`
	InitializationOptions any                `json:"initializationOptions,omitempty"`
	WorkspaceFolders      []WorkspaceFolder  `json:"workspaceFolders,omitempty"`
}

// InitializationOptions is the server-specific initialize payload.
type InitializationOptions struct {
	// StoragePath is where the server may persist caches and indexes.
	StoragePath string `json:"storagePath,omitempty"`
}

// ClientCapabilities advertises what this client understands. Kept minimal:
// the bridge does document sync and watched-file notifications, nothing more.
type ClientCapabilities struct {
	Workspace    WorkspaceClientCapabilities    `json:"workspace"`
	TextDocument TextDocumentClientCapabilities `json:"textDocument"`
}

type WorkspaceClientCapabilities struct {
	DidChangeWatchedFiles DynamicRegistrationCapability `json:"didChangeWatchedFiles"`
	WorkspaceFolders      bool                          `json:"workspaceFolders"`
}

type TextDocumentClientCapabilities struct {
	Synchronization SynchronizationCapabilities `json:"synchronization"`
}

type DynamicRegistrationCapability struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
}

type SynchronizationCapabilities struct {
	DidSave bool `json:"didSave"`
}

// DefaultClientCapabilities returns the capabilities the bridge advertises.
func DefaultClientCapabilities() ClientCapabilities {
	return ClientCapabilities{
		Workspace: WorkspaceClientCapabilities{
			WorkspaceFolders: true,
		},
		TextDocument: TextDocumentClientCapabilities{
			Synchronization: SynchronizationCapabilities{DidSave: true},
		},
	}
}

// WorkspaceFolder names one root of the workspace.
type WorkspaceFolder struct {
	URI  DocumentURI `json:"uri"`
	Name string      `json:"name"`
}

// InitializeResult is the server's initialize response.
type InitializeResult struct {
	Capabilities json.RawMessage `json:"capabilities"`
	ServerInfo   *ServerInfo     `json:"serverInfo,omitempty"`
}

// ServerInfo identifies the server build.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// --- Watched files ---

// FileChangeType is the kind of watched-file change.
type FileChangeType int

const (
	FileCreated FileChangeType = 1
	FileChanged FileChangeType = 2
	FileDeleted FileChangeType = 3
)

// FileEvent is one watched-file change.
type FileEvent struct {
	URI  DocumentURI    `json:"uri"`
	Type FileChangeType `json:"type"`
}

// DidChangeWatchedFilesParams carries watched-file changes to the server.
type DidChangeWatchedFilesParams struct {
	Changes []FileEvent `json:"changes"`
}

// --- Server notifications ---

// LogMessageParams is the payload of window/logMessage.
type LogMessageParams struct {
	Type    int    `json:"type"`
	Message string `json:"message"`
}

// Position is a zero-based line/character position.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// TextDocumentIdentifier names a document by URI.
type TextDocumentIdentifier struct {
	URI DocumentURI `json:"uri"`
}
