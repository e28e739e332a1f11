// Package mime 将任意（可能畸形的）原始邮件内容转换为可渲染的 HTML 文档。
//
// 与标准库 mime/multipart 不同，这里的解析器从不报错：
// 无法识别的输入一律降级为带提示文字的兜底文档。
package mime

import (
	"encoding/base64"
	"regexp"
	"strconv"
	"strings"
)

// 兜底文档中的提示文字。
const (
	noticeNoBoundary = "[Email format not recognized: no boundary]"
	noticeNoContent  = "[No readable HTML or plain text found]"
)

var (
	// boundary 标记可能带引号也可能不带。
	boundaryRe  = regexp.MustCompile(`(?i)boundary="([^"]+)"|boundary=([^\s;]+)`)
	htmlTypeRe  = regexp.MustCompile(`(?i)text/html`)
	plainTypeRe = regexp.MustCompile(`(?i)text/plain`)
	softBreakRe = regexp.MustCompile(`=\r?\n`)
	qpEscapeRe  = regexp.MustCompile(`=([A-Fa-f0-9]{2})`)
	newlineRe   = regexp.MustCompile(`\r?\n`)
)

// Extract 从原始 MIME 内容中提取一份可直接渲染的 HTML 文档。
//
// 解析永不失败：找不到 multipart 边界、没有可读正文、解码出错，
// 都会得到确定的兜底输出而不是错误。
//
// 候选部分按 first-wins 规则收集：取第一个 text/html 部分和第一个
// text/plain 部分，后续同类部分忽略。存在 HTML 部分时原样返回其解码
// 内容；否则纯文本经转义后包进 <pre> 块；两者皆无时返回提示文档。
func Extract(raw []byte) string {
	mime := string(raw)

	boundary := findBoundary(mime)
	if boundary == "" {
		return wrapHTML(noticeNoBoundary)
	}

	delimiter := regexp.MustCompile(`--` + regexp.QuoteMeta(boundary) + `(--)?\r?\n`)
	parts := delimiter.Split(mime, -1)

	var htmlBody, plainBody string

	for _, part := range parts {
		headerBlock, body, ok := splitPart(part)
		if !ok {
			// 头与正文之间没有空行，整个部分跳过。
			continue
		}

		headers := parseHeaders(headerBlock)
		contentType := headers["content-type"]
		encoding := strings.ToLower(headers["content-transfer-encoding"])

		decoded := decodeBody(body, encoding)

		if htmlTypeRe.MatchString(contentType) && htmlBody == "" {
			htmlBody = decoded
		} else if plainTypeRe.MatchString(contentType) && plainBody == "" {
			plainBody = decoded
		}
	}

	if htmlBody != "" {
		return htmlBody
	}
	if plainBody != "" {
		return wrapHTML("<pre>" + EscapeHTML(plainBody) + "</pre>")
	}
	return wrapHTML(noticeNoContent)
}

// findBoundary 从 Content-Type 头（或正文内联的 boundary= 标记）定位边界。
func findBoundary(mime string) string {
	m := boundaryRe.FindStringSubmatch(mime)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

// splitPart 在第一个空行处把部分拆成头块与正文。
func splitPart(part string) (headerBlock, body string, ok bool) {
	idx := strings.Index(part, "\r\n\r\n")
	sepLen := 4
	if lf := strings.Index(part, "\n\n"); lf != -1 && (idx == -1 || lf < idx) {
		idx = lf
		sepLen = 2
	}
	if idx == -1 {
		return "", "", false
	}
	return strings.TrimSpace(part[:idx]), strings.TrimSpace(part[idx+sepLen:]), true
}

// parseHeaders 解析部分的头块。
//
// 键不区分大小写；以空白开头的行是折叠续行，其内容以空格拼接到
// 上一个头的值后面；没有冒号的行忽略。
func parseHeaders(headerBlock string) map[string]string {
	headers := make(map[string]string)
	lastKey := ""

	for _, line := range newlineRe.Split(headerBlock, -1) {
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && lastKey != "" {
			headers[lastKey] += " " + strings.TrimSpace(line)
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found || key == "" {
			continue
		}
		lastKey = strings.ToLower(strings.TrimSpace(key))
		headers[lastKey] = strings.TrimSpace(value)
	}

	return headers
}

// decodeBody 按传输编码解码正文；未知或缺失的编码原样返回。
func decodeBody(content, encoding string) string {
	switch encoding {
	case "base64":
		return decodeBase64(content)
	case "quoted-printable":
		return decodeQuotedPrintable(content)
	default:
		return content
	}
}

// decodeBase64 忽略内嵌换行解码 base64；出错时保留已解出的前缀。
func decodeBase64(content string) string {
	src := []byte(newlineRe.ReplaceAllString(content, ""))
	dst := make([]byte, base64.StdEncoding.DecodedLen(len(src)))
	// 尽力而为：非法输入截断到最后一个完整解码的字节，不报错。
	n, _ := base64.StdEncoding.Decode(dst, src)
	return string(dst[:n])
}

// decodeQuotedPrintable 去除软换行后把 =XX 转义替换为对应字节。
//
// 按字节替换而非按 rune，=C3=A9 这类跨转义的多字节 UTF-8 序列
// 才能正确还原；非法转义原样保留。
func decodeQuotedPrintable(content string) string {
	unfolded := softBreakRe.ReplaceAllString(content, "")
	decoded := qpEscapeRe.ReplaceAllFunc([]byte(unfolded), func(m []byte) []byte {
		v, err := strconv.ParseUint(string(m[1:]), 16, 8)
		if err != nil {
			return m
		}
		return []byte{byte(v)}
	})
	return string(decoded)
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// EscapeHTML 转义五个 HTML 保留字符。
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

func wrapHTML(inner string) string {
	return "<html><body>" + inner + "</body></html>"
}
