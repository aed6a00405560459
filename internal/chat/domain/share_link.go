package domain

import (
	"encoding/json"
	"net/url"
	"strings"
)

// ShareKind deep link 種類
type ShareKind string

const (
	// ShareVideo 影片貼文
	ShareVideo ShareKind = "video"
	// SharePhoto 照片貼文
	SharePhoto ShareKind = "photo"
	// ShareStream 直播
	ShareStream ShareKind = "streaming"
	// ShareCommunity 社群邀請
	ShareCommunity ShareKind = "community"
)

// SharePayload deep link 夾帶的結構化資料, 至少有 _id
type SharePayload map[string]any

// ID payload 的 _id
func (p SharePayload) ID() string {
	id, _ := p["_id"].(string)
	return id
}

// ShareCodec 依 scheme / web host 編解碼訊息內的 deep link
type ShareCodec struct {
	scheme string
	host   string
}

// DefaultShareCodec chatapp:// 與 https://chatapp.io
var DefaultShareCodec = NewShareCodec("chatapp", "chatapp.io")

// NewShareCodec create ShareCodec
func NewShareCodec(scheme, host string) ShareCodec {
	return ShareCodec{
		scheme: strings.TrimSuffix(scheme, "://"),
		host:   strings.Trim(host, "/"),
	}
}

func (c ShareCodec) prefix(kind ShareKind) string {
	return c.scheme + "://" + string(kind) + "/"
}

func (c ShareCodec) webPrefix(kind ShareKind) string {
	return "https://" + c.host + "/" + string(kind) + "/"
}

// Encode 產生 deep link, payload 沒有 _id 時回傳空字串
//
//	video/photo: scheme://video/<id>[?data=<json>]
//	streaming:   scheme://streaming/<id>
//	community:   scheme://community/<id>?invite=true&data=<json>
func (c ShareCodec) Encode(kind ShareKind, payload SharePayload) string {
	id := payload.ID()
	if id == "" {
		return ""
	}

	link := c.prefix(kind) + url.PathEscape(id)
	switch kind {
	case ShareStream:
		return link
	case ShareCommunity:
		q := url.Values{}
		q.Set("invite", "true")
		if data, ok := encodeShareData(payload); ok {
			q.Set("data", data)
		}
		return link + "?" + q.Encode()
	default:
		if len(payload) <= 1 {
			return link
		}
		if data, ok := encodeShareData(payload); ok {
			return link + "?data=" + url.QueryEscape(data)
		}
		return link
	}
}

func encodeShareData(payload SharePayload) (string, bool) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// ExtractVideoShare scheme://video/<id>[?data=]
func (c ShareCodec) ExtractVideoShare(text string) (SharePayload, bool) {
	return c.extract(text, ShareVideo, c.prefix(ShareVideo))
}

// ExtractPhotoShare scheme://photo/<id>[?data=]
func (c ShareCodec) ExtractPhotoShare(text string) (SharePayload, bool) {
	return c.extract(text, SharePhoto, c.prefix(SharePhoto))
}

// ExtractStreamShare scheme://streaming/<id>
func (c ShareCodec) ExtractStreamShare(text string) (SharePayload, bool) {
	return c.extract(text, ShareStream, c.prefix(ShareStream))
}

// ExtractCommunityInvite scheme 或 https web link, 都必須帶 invite=true
func (c ShareCodec) ExtractCommunityInvite(text string) (SharePayload, bool) {
	if p, ok := c.extract(text, ShareCommunity, c.prefix(ShareCommunity)); ok {
		return p, true
	}
	return c.extract(text, ShareCommunity, c.webPrefix(ShareCommunity))
}

// Detect 依 streaming, video, photo, community 順序比對
func (c ShareCodec) Detect(text string) (ShareKind, SharePayload, bool) {
	if p, ok := c.ExtractStreamShare(text); ok {
		return ShareStream, p, true
	}
	if p, ok := c.ExtractVideoShare(text); ok {
		return ShareVideo, p, true
	}
	if p, ok := c.ExtractPhotoShare(text); ok {
		return SharePhoto, p, true
	}
	if p, ok := c.ExtractCommunityInvite(text); ok {
		return ShareCommunity, p, true
	}
	return "", nil, false
}

// extract data 不是合法 JSON 時視為不是 share link
func (c ShareCodec) extract(text string, kind ShareKind, prefix string) (SharePayload, bool) {
	start := strings.Index(text, prefix)
	if start < 0 {
		return nil, false
	}
	link := text[start+len(prefix):]
	if end := strings.IndexAny(link, " \t\r\n"); end >= 0 {
		link = link[:end]
	}

	rawID, rawQuery, _ := strings.Cut(link, "?")
	id, err := url.PathUnescape(strings.TrimSuffix(rawID, "/"))
	if err != nil || id == "" {
		return nil, false
	}

	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, false
	}
	if kind == ShareCommunity && query.Get("invite") != "true" {
		return nil, false
	}

	data := query.Get("data")
	if data == "" {
		return SharePayload{"_id": id}, true
	}

	var payload SharePayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil || payload == nil {
		return nil, false
	}
	if payload.ID() == "" {
		payload["_id"] = id
	}
	return payload, true
}
