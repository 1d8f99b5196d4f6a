package content

import (
	"fmt"
	"reflect"
)

// DataPatch is a partial update for one block variant. Nil fields leave the
// stored value untouched; non-nil fields overwrite it.
type DataPatch interface {
	BlockType() BlockType
	apply(current BlockData) (BlockData, error)
}

// TextPatch updates a text block.
type TextPatch struct {
	Text *string `json:"text"`
}

// ImagePatch updates an image block.
type ImagePatch struct {
	URL     *string `json:"url"`
	Caption *string `json:"caption"`
}

// GalleryPatch replaces the URL list of a gallery block.
type GalleryPatch struct {
	URLs *[]string `json:"urls"`
}

// CodePatch updates a code block.
type CodePatch struct {
	Code     *string `json:"code"`
	Language *string `json:"language"`
}

// CTAPatch updates a call-to-action block.
type CTAPatch struct {
	Text    *string     `json:"text"`
	Link    *string     `json:"link"`
	Variant *CTAVariant `json:"variant"`
}

// EmbedPatch updates an embed block.
type EmbedPatch struct {
	URL      *string        `json:"url"`
	Provider *EmbedProvider `json:"provider"`
}

func (TextPatch) BlockType() BlockType    { return BlockTypeText }
func (ImagePatch) BlockType() BlockType   { return BlockTypeImage }
func (GalleryPatch) BlockType() BlockType { return BlockTypeGallery }
func (CodePatch) BlockType() BlockType    { return BlockTypeCode }
func (CTAPatch) BlockType() BlockType     { return BlockTypeCTA }
func (EmbedPatch) BlockType() BlockType   { return BlockTypeEmbed }

func (p TextPatch) apply(current BlockData) (BlockData, error) {
	data, ok := current.(TextData)
	if !ok {
		return nil, mismatchedPatch(p, current)
	}
	assign(&data.Text, p.Text)
	return data, nil
}

func (p ImagePatch) apply(current BlockData) (BlockData, error) {
	data, ok := current.(ImageData)
	if !ok {
		return nil, mismatchedPatch(p, current)
	}
	assign(&data.URL, p.URL)
	assign(&data.Caption, p.Caption)
	return data, nil
}

func (p GalleryPatch) apply(current BlockData) (BlockData, error) {
	data, ok := current.(GalleryData)
	if !ok {
		return nil, mismatchedPatch(p, current)
	}
	if p.URLs != nil {
		urls := make([]string, len(*p.URLs))
		copy(urls, *p.URLs)
		data.URLs = urls
	}
	return data, nil
}

func (p CodePatch) apply(current BlockData) (BlockData, error) {
	data, ok := current.(CodeData)
	if !ok {
		return nil, mismatchedPatch(p, current)
	}
	assign(&data.Code, p.Code)
	assign(&data.Language, p.Language)
	return data, nil
}

func (p CTAPatch) apply(current BlockData) (BlockData, error) {
	data, ok := current.(CTAData)
	if !ok {
		return nil, mismatchedPatch(p, current)
	}
	assign(&data.Text, p.Text)
	assign(&data.Link, p.Link)
	assign(&data.Variant, p.Variant)
	return data, data.validate()
}

func (p EmbedPatch) apply(current BlockData) (BlockData, error) {
	data, ok := current.(EmbedData)
	if !ok {
		return nil, mismatchedPatch(p, current)
	}
	assign(&data.URL, p.URL)
	assign(&data.Provider, p.Provider)
	return data, data.validate()
}

// DecodePatch builds the typed patch for blockType from a JSON object.
// Keys that do not belong to the variant are rejected.
func DecodePatch(blockType BlockType, raw []byte) (DataPatch, error) {
	var (
		patch DataPatch
		err   error
	)
	switch blockType {
	case BlockTypeText:
		var typed TextPatch
		err = decodeStrict(raw, &typed)
		patch = typed
	case BlockTypeImage:
		var typed ImagePatch
		err = decodeStrict(raw, &typed)
		patch = typed
	case BlockTypeGallery:
		var typed GalleryPatch
		err = decodeStrict(raw, &typed)
		patch = typed
	case BlockTypeCode:
		var typed CodePatch
		err = decodeStrict(raw, &typed)
		patch = typed
	case BlockTypeCTA:
		var typed CTAPatch
		err = decodeStrict(raw, &typed)
		patch = typed
	case BlockTypeEmbed:
		var typed EmbedPatch
		err = decodeStrict(raw, &typed)
		patch = typed
	default:
		return nil, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown block type %q", blockType)}
	}
	if err != nil {
		return nil, &ValidationError{Field: "data", Reason: fmt.Sprintf("%s patch: %v", blockType, err)}
	}
	return patch, nil
}

// missingPatch reports a nil interface or a typed nil pointer patch.
func missingPatch(patch DataPatch) bool {
	if patch == nil {
		return true
	}
	value := reflect.ValueOf(patch)
	return value.Kind() == reflect.Pointer && value.IsNil()
}

func assign[T any](target *T, value *T) {
	if value != nil {
		*target = *value
	}
}

func mismatchedPatch(patch DataPatch, current BlockData) error {
	return &ValidationError{
		Field:  "data",
		Reason: fmt.Sprintf("%s patch cannot update a %s block", patch.BlockType(), current.BlockType()),
	}
}
