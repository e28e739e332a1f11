package mime

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMultipart 构造一封标准的 multipart 测试邮件。
func buildMultipart(boundary string, parts ...string) string {
	var b strings.Builder
	b.WriteString("From: sender@example.com\r\n")
	b.WriteString("Content-Type: multipart/alternative; boundary=\"" + boundary + "\"\r\n")
	b.WriteString("\r\n")
	for _, part := range parts {
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString(part)
	}
	b.WriteString("--" + boundary + "--\r\n")
	return b.String()
}

func TestExtract_FirstHTMLPartVerbatim(t *testing.T) {
	raw := buildMultipart("b1",
		"Content-Type: text/plain\r\n\r\nplain fallback\r\n",
		"Content-Type: text/html\r\n\r\n<b>hi</b>\r\n",
		"Content-Type: text/html\r\n\r\n<i>second, ignored</i>\r\n",
	)

	got := Extract([]byte(raw))

	// HTML 部分原样返回，不额外包裹。
	assert.Equal(t, "<b>hi</b>", got)
}

func TestExtract_UnquotedBoundary(t *testing.T) {
	raw := "Content-Type: multipart/mixed; boundary=plain-token\r\n\r\n" +
		"--plain-token\r\n" +
		"Content-Type: text/html\r\n\r\n<p>ok</p>\r\n" +
		"--plain-token--\r\n"

	assert.Equal(t, "<p>ok</p>", Extract([]byte(raw)))
}

func TestExtract_PlainTextEscapedAndWrapped(t *testing.T) {
	raw := buildMultipart("b2",
		"Content-Type: text/plain\r\n\r\n<script>alert(1)</script>\r\n",
	)

	got := Extract([]byte(raw))

	assert.Contains(t, got, "<pre>&lt;script&gt;alert(1)&lt;/script&gt;</pre>")
	assert.True(t, strings.HasPrefix(got, "<html><body>"))
	assert.NotContains(t, got, "<script>")
}

func TestExtract_NoBoundaryFallback(t *testing.T) {
	got := Extract([]byte("Subject: hello\r\n\r\njust some text"))

	assert.Equal(t, "<html><body>[Email format not recognized: no boundary]</body></html>", got)
}

func TestExtract_NoReadableContentFallback(t *testing.T) {
	raw := buildMultipart("b3",
		"Content-Type: image/png\r\n\r\nBINARYBYTES\r\n",
	)

	got := Extract([]byte(raw))

	assert.Contains(t, got, "[No readable HTML or plain text found]")
}

func TestExtract_PartWithoutBlankLineSkipped(t *testing.T) {
	// 该部分头与正文之间没有空行，既不算 HTML 候选也不算纯文本候选。
	raw := buildMultipart("b4",
		"Content-Type: text/html\r\nno blank line here",
		"Content-Type: text/plain\r\n\r\nreadable\r\n",
	)

	got := Extract([]byte(raw))

	assert.Contains(t, got, "<pre>readable</pre>")
}

func TestExtract_Base64Body(t *testing.T) {
	// "PGI+b2s8L2I+" == "<b>ok</b>"，且含内嵌换行。
	raw := buildMultipart("b5",
		"Content-Type: text/html\r\nContent-Transfer-Encoding: base64\r\n\r\nPGI+b2s8\r\nL2I+\r\n",
	)

	assert.Equal(t, "<b>ok</b>", Extract([]byte(raw)))
}

func TestExtract_InvalidBase64DoesNotPanic(t *testing.T) {
	raw := buildMultipart("b6",
		"Content-Type: text/html\r\nContent-Transfer-Encoding: base64\r\n\r\n!!!not-base64!!!\r\n",
		"Content-Type: text/plain\r\n\r\nfallback text\r\n",
	)

	require.NotPanics(t, func() { Extract([]byte(raw)) })
}

func TestExtract_FoldedContentTypeHeader(t *testing.T) {
	raw := buildMultipart("b7",
		"Content-Type: text/html;\r\n charset=utf-8\r\n\r\n<p>folded</p>\r\n",
	)

	assert.Equal(t, "<p>folded</p>", Extract([]byte(raw)))
}

func TestDecodeQuotedPrintable(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"多字节转义组合", "Caf=C3=A9", "Café"},
		{"软换行拼接", "first line=\r\nstill first", "first linestill first"},
		{"非法转义原样保留", "=ZZ stays", "=ZZ stays"},
		{"无转义原样返回", "plain", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeQuotedPrintable(tt.in))
		})
	}
}

func TestExtract_QuotedPrintablePlainText(t *testing.T) {
	raw := buildMultipart("b8",
		"Content-Type: text/plain\r\nContent-Transfer-Encoding: quoted-printable\r\n\r\nCaf=C3=A9\r\n",
	)

	got := Extract([]byte(raw))

	assert.Contains(t, got, "<pre>Café</pre>")
}

func TestEscapeHTML(t *testing.T) {
	got := EscapeHTML(`<script>"a" & 'b'</script>`)

	assert.Equal(t, "&lt;script&gt;&quot;a&quot; &amp; &#39;b&#39;&lt;/script&gt;", got)
	assert.NotContains(t, got, "<")
	assert.NotContains(t, got, ">")
}
