package extract

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/you/wachat-extract/internal/core"
	"github.com/you/wachat-extract/internal/normalize"
)

// Pictographs, dingbats, joiners and variation selectors used to build emoji sequences.
var emoji = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200d, Hi: 0x200d, Stride: 1},
		{Lo: 0x203c, Hi: 0x203c, Stride: 1},
		{Lo: 0x2049, Hi: 0x2049, Stride: 1},
		{Lo: 0x20e3, Hi: 0x20e3, Stride: 1},
		{Lo: 0x2122, Hi: 0x2122, Stride: 1},
		{Lo: 0x2139, Hi: 0x2139, Stride: 1},
		{Lo: 0x2190, Hi: 0x21ff, Stride: 1},
		{Lo: 0x2300, Hi: 0x23ff, Stride: 1},
		{Lo: 0x24c2, Hi: 0x24c2, Stride: 1},
		{Lo: 0x25a0, Hi: 0x25ff, Stride: 1},
		{Lo: 0x2600, Hi: 0x27bf, Stride: 1},
		{Lo: 0x2934, Hi: 0x2935, Stride: 1},
		{Lo: 0x2b00, Hi: 0x2bff, Stride: 1},
		{Lo: 0x3030, Hi: 0x3030, Stride: 1},
		{Lo: 0x303d, Hi: 0x303d, Stride: 1},
		{Lo: 0x3297, Hi: 0x3297, Stride: 1},
		{Lo: 0x3299, Hi: 0x3299, Stride: 1},
		{Lo: 0xfe00, Hi: 0xfe0f, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1f000, Hi: 0x1faff, Stride: 1},
		{Lo: 0xe0020, Hi: 0xe007f, Stride: 1},
	},
}

var emojiRemover = runes.Remove(runes.In(emoji))

// DefaultNotices are the system strings chat exports put in place of real content.
var DefaultNotices = []string{
	"<Media omitted>",
	"image omitted",
	"video omitted",
	"audio omitted",
	"sticker omitted",
	"GIF omitted",
	"document omitted",
	"Contact card omitted",
	"Messages and calls are end-to-end encrypted. Only people in this chat can read, listen to, or share them.",
	"Messages and calls are end-to-end encrypted. No one outside of this chat, not even WhatsApp, can read or listen to them.",
	"This message was deleted",
	"You deleted this message",
	"<This message was edited>",
	"<الوسائط غير مضمنة>",
	"تم استبعاد الصورة",
	"تم استبعاد الفيديو",
	"تم استبعاد الملصق",
	"الرسائل والمكالمات مشفرة تمامًا بين الطرفين. لا يمكن لأي شخص خارج هذه الدردشة قراءتها أو الاستماع إليها أو مشاركتها.",
	"تم حذف هذه الرسالة",
	"لقد حذفت هذه الرسالة",
	"<تم تعديل هذه الرسالة>",
}

// Stripper removes emoji and boilerplate notices from presentation fields.
type Stripper struct {
	notices []string
}

// NewStripper returns a stripper for notices, longest first so that a notice
// containing another is removed whole. An empty slice selects DefaultNotices.
func NewStripper(notices []string) *Stripper {
	if len(notices) == 0 {
		notices = DefaultNotices
	}
	s := &Stripper{}
	for _, n := range notices {
		if n = normalize.Spaces(n); n != "" {
			s.notices = append(s.notices, n)
		}
	}
	sort.SliceStable(s.notices, func(i, j int) bool { return len(s.notices[i]) > len(s.notices[j]) })
	return s
}

// Text strips one string.
func (s *Stripper) Text(text string) string {
	for _, n := range s.notices {
		text = strings.ReplaceAll(text, n, " ")
	}
	if out, _, err := transform.String(emojiRemover, text); err == nil {
		text = out
	}
	return normalize.Spaces(text)
}

// Strip cleans SenderName and Message. It reports whether anything changed.
func (s *Stripper) Strip(rec *core.Record) bool {
	name, msg := s.Text(rec.SenderName), s.Text(rec.Message)
	changed := name != rec.SenderName || msg != rec.Message
	rec.SenderName, rec.Message = name, msg
	return changed
}
