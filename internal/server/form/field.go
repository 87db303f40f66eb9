package form

import (
	"github.com/dmitrijs2005/catalogadmin/internal/server/upload"
)

// FileState tags the variant held by a FileField.
type FileState int

const (
	// Empty: nothing selected and nothing stored.
	Empty FileState = iota
	// Selected: a local file is waiting for submission; nothing sent yet.
	Selected
	// FileUploading: the file is being transferred by an upload task.
	FileUploading
	// Resolved: the field refers to a stored blob by URL.
	Resolved
)

func (s FileState) String() string {
	switch s {
	case Empty:
		return "empty"
	case Selected:
		return "selected"
	case FileUploading:
		return "uploading"
	case Resolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// FileField is the value of a file field: exactly one of Empty,
// Selected(file), Uploading(task) or Resolved(url).
type FileField struct {
	state FileState
	file  upload.File
	task  *upload.Task
	url   string
}

func EmptyFile() FileField                 { return FileField{state: Empty} }
func SelectedFile(f upload.File) FileField { return FileField{state: Selected, file: f} }
func UploadingFile(t *upload.Task) FileField {
	return FileField{state: FileUploading, file: t.File(), task: t}
}
func ResolvedFile(url string) FileField {
	if url == "" {
		return EmptyFile()
	}
	return FileField{state: Resolved, url: url}
}

func (f FileField) State() FileState { return f.state }

// File is meaningful for Selected and Uploading.
func (f FileField) File() upload.File { return f.file }

// Task is meaningful for Uploading.
func (f FileField) Task() *upload.Task { return f.task }

// URL is meaningful for Resolved.
func (f FileField) URL() string { return f.url }

// storedValue is what a record holds for this field once submitted.
func (f FileField) storedValue() string {
	if f.state == Resolved {
		return f.url
	}
	return ""
}
