package kritor

import (
	"strconv"
	"strings"
)

// ElementType discriminates the payload carried by an Element.
type ElementType int32

const (
	ElementText  ElementType = 0
	ElementAt    ElementType = 1
	ElementFace  ElementType = 2
	ElementReply ElementType = 4
	ElementImage ElementType = 5
	ElementFile  ElementType = 8
)

func (t ElementType) String() string {
	switch t {
	case ElementText:
		return "text"
	case ElementAt:
		return "at"
	case ElementFace:
		return "face"
	case ElementReply:
		return "reply"
	case ElementImage:
		return "image"
	case ElementFile:
		return "file"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// Element is one segment of a message. Exactly one of the payload pointers
// matching Type is set; the others are nil.
type Element struct {
	Type  ElementType   `json:"type"`
	Text  *TextElement  `json:"text,omitempty"`
	At    *AtElement    `json:"at,omitempty"`
	Face  *FaceElement  `json:"face,omitempty"`
	Reply *ReplyElement `json:"reply,omitempty"`
	Image *ImageElement `json:"image,omitempty"`
	File  *FileElement  `json:"file,omitempty"`
}

type TextElement struct {
	Text string `json:"text"`
}

type AtElement struct {
	UID string  `json:"uid"`
	UIN *uint64 `json:"uin,omitempty"`
}

type FaceElement struct {
	ID     uint32 `json:"id"`
	IsBig  bool   `json:"is_big,omitempty"`
	Result uint32 `json:"result,omitempty"`
}

type ReplyElement struct {
	MessageID string `json:"message_id"`
}

// ImageType mirrors the kritor image kinds.
type ImageType int32

const (
	ImageCommon ImageType = 0
	ImageOrigin ImageType = 1
	ImageFlash  ImageType = 2
)

// ImageElement carries an image either inline (File) or by reference (URL
// or FilePath).
type ImageElement struct {
	Type     ImageType `json:"type"`
	File     []byte    `json:"file,omitempty"`
	FileName string    `json:"file_name,omitempty"`
	FilePath string    `json:"file_path,omitempty"`
	FileURL  string    `json:"file_url,omitempty"`
	FileMD5  string    `json:"file_md5,omitempty"`
	SubType  *uint32   `json:"sub_type,omitempty"`
}

type FileElement struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Size   uint64 `json:"size,omitempty"`
	SubID  string `json:"sub_id,omitempty"`
	URL    string `json:"url,omitempty"`
	BizID  int32  `json:"biz_id,omitempty"`
	Expire uint64 `json:"expire,omitempty"`
}

// Text builds a text element.
func Text(s string) Element { return Element{Type: ElementText, Text: &TextElement{Text: s}} }

// At builds a mention element.
func At(uid string, uin uint64) Element {
	return Element{Type: ElementAt, At: &AtElement{UID: uid, UIN: Ptr(uin)}}
}

// Reply builds a quote element referencing messageID.
func Reply(messageID string) Element {
	return Element{Type: ElementReply, Reply: &ReplyElement{MessageID: messageID}}
}

// Image builds an inline image element.
func Image(data []byte) Element {
	return Element{Type: ElementImage, Image: &ImageElement{Type: ImageCommon, File: data}}
}

// ImageURL builds an image element referencing a remote URL.
func ImageURL(url string) Element {
	return Element{Type: ElementImage, Image: &ImageElement{Type: ImageCommon, FileURL: url}}
}

// Elements is a message body. The helpers ignore malformed elements whose
// payload pointer does not match their Type.
type Elements []Element

// Texts returns the text segments in order.
func (es Elements) Texts() []string {
	var out []string
	for _, e := range es {
		if e.Type == ElementText && e.Text != nil {
			out = append(out, e.Text.Text)
		}
	}
	return out
}

// FirstText returns the first text segment, trimmed.
func (es Elements) FirstText() (string, bool) {
	for _, e := range es {
		if e.Type == ElementText && e.Text != nil {
			return strings.TrimSpace(e.Text.Text), true
		}
	}
	return "", false
}

// Images returns the image segments in order.
func (es Elements) Images() []ImageElement {
	var out []ImageElement
	for _, e := range es {
		if e.Type == ElementImage && e.Image != nil {
			out = append(out, *e.Image)
		}
	}
	return out
}

// Ats returns the mention segments in order.
func (es Elements) Ats() []AtElement {
	var out []AtElement
	for _, e := range es {
		if e.Type == ElementAt && e.At != nil {
			out = append(out, *e.At)
		}
	}
	return out
}

// ReplyTo returns the quoted message, if any.
func (es Elements) ReplyTo() (ReplyElement, bool) {
	for _, e := range es {
		if e.Type == ElementReply && e.Reply != nil {
			return *e.Reply, true
		}
	}
	return ReplyElement{}, false
}

// File returns the first file segment, if any.
func (es Elements) File() (FileElement, bool) {
	for _, e := range es {
		if e.Type == ElementFile && e.File != nil {
			return *e.File, true
		}
	}
	return FileElement{}, false
}

// RawText renders the elements as a single human-readable line, used in
// logs. Non-text segments render as bracketed placeholders.
func (es Elements) RawText() string {
	var b strings.Builder
	for _, e := range es {
		switch {
		case e.Type == ElementText && e.Text != nil:
			b.WriteString(e.Text.Text)
		case e.Type == ElementAt && e.At != nil:
			b.WriteString("[at:")
			if e.At.UIN != nil {
				b.WriteString(strconv.FormatUint(*e.At.UIN, 10))
			} else {
				b.WriteString(e.At.UID)
			}
			b.WriteByte(']')
		case e.Type == ElementFace && e.Face != nil:
			b.WriteString("[face:" + strconv.FormatUint(uint64(e.Face.ID), 10) + "]")
		case e.Type == ElementReply && e.Reply != nil:
			b.WriteString("[reply:" + e.Reply.MessageID + "]")
		case e.Type == ElementImage:
			b.WriteString("[image]")
		case e.Type == ElementFile && e.File != nil:
			b.WriteString("[file:" + e.File.Name + "]")
		default:
			b.WriteString("[" + e.Type.String() + "]")
		}
	}
	return b.String()
}
