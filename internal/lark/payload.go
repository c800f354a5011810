// Package lark builds and delivers custom-bot webhook messages for
// Lark/Feishu group bots, including the timestamped HMAC-SHA256 request
// signature the vendor requires when a bot secret is configured.
package lark

import (
	"strconv"
	"strings"
)

// Message is the JSON body posted to the custom-bot webhook. Timestamp and
// Sign are only set for signed sends; the vendor expects the timestamp as a
// decimal string of Unix seconds.
type Message struct {
	Timestamp string  `json:"timestamp,omitempty"`
	Sign      string  `json:"sign,omitempty"`
	MsgType   string  `json:"msg_type"`
	Content   Content `json:"content"`
}

// Content wraps the post rich-text payload.
type Content struct {
	Post Post `json:"post"`
}

// Post holds the per-locale message body. Only zh_cn is populated; the
// vendor renders it for all locales when no other locale block is present.
type Post struct {
	ZhCN PostBody `json:"zh_cn"`
}

// PostBody is the title plus paragraphs of rich-text elements.
type PostBody struct {
	Title   string      `json:"title"`
	Content [][]Element `json:"content"`
}

// Element is one run of post rich text. Plain text uses tag "text";
// highlighted keywords use tag "a" with an empty href, which the client
// renders emphasized without linking anywhere.
type Element struct {
	Tag  string  `json:"tag"`
	Text string  `json:"text"`
	Href *string `json:"href,omitempty"`
}

func textElement(text string) Element {
	return Element{Tag: "text", Text: text}
}

func keywordElement(keyword string) Element {
	href := ""
	return Element{Tag: "a", Text: keyword, Href: &href}
}

// Highlight splits content into rich-text element runs, wrapping every
// case-sensitive literal occurrence of each keyword in a highlight element.
// Keywords are applied in input order; text already claimed by an earlier
// keyword is not re-scanned, so overlapping keywords do not nest.
//
// An empty keyword list returns the content as a single plain-text run.
func Highlight(content string, keywords []string) []Element {
	elements := []Element{textElement(content)}

	for _, keyword := range keywords {
		if keyword == "" {
			continue
		}
		var next []Element
		for _, el := range elements {
			if el.Tag != "text" || !strings.Contains(el.Text, keyword) {
				next = append(next, el)
				continue
			}
			parts := strings.Split(el.Text, keyword)
			for i, part := range parts {
				if i > 0 {
					next = append(next, keywordElement(keyword))
				}
				if part != "" {
					next = append(next, textElement(part))
				}
			}
		}
		elements = next
	}

	return elements
}

// ParseKeywords splits a comma-separated keyword list, trimming whitespace
// and dropping empty entries. Order is preserved.
func ParseKeywords(s string) []string {
	if s == "" {
		return nil
	}
	var keywords []string
	for _, part := range strings.Split(s, ",") {
		if kw := strings.TrimSpace(part); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}

// BuildMessage assembles the webhook message for a title and content body.
// When env is non-nil the message carries the signature envelope; otherwise
// both signature fields are omitted from the JSON entirely.
//
// BuildMessage is pure: identical inputs (including the envelope timestamp)
// marshal to byte-identical JSON.
func BuildMessage(title, content string, keywords []string, env *SignedEnvelope) Message {
	msg := Message{
		MsgType: "post",
		Content: Content{
			Post: Post{
				ZhCN: PostBody{
					Title:   title,
					Content: [][]Element{Highlight(content, keywords)},
				},
			},
		},
	}

	if env != nil {
		msg.Timestamp = strconv.FormatInt(env.Timestamp, 10)
		msg.Sign = env.Sign
	}

	return msg
}
