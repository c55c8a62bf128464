package s3

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"sort"
	"strings"
)

// Signer 复现 S3 旧版 (Signature Version 2) 的请求签名
//
//	StringToSign = METHOD \n Content-MD5 \n Content-Type \n Date \n
//	               [CanonicalizedAmzHeaders \n] CanonicalizedResource
//	Signature    = Base64(HMAC-SHA1(SecretKey, UTF-8(StringToSign)))
//	Authorization: AWS AccessKey:Signature
//
// 这个方案本身没有可校验的过期时间。
type Signer struct {
	AccessKey string
	SecretKey string
}

// StringToSign 构造待签名字符串
// resource 是 CanonicalizedResource，例如 /bucket/user/repo/oid
func (s Signer) StringToSign(method string, headers map[string]string, resource string) string {
	parts := []string{
		method,
		headerValue(headers, "Content-MD5"),
		headerValue(headers, "Content-Type"),
		headerValue(headers, "Date"),
	}
	if amz := canonicalAmzHeaders(headers); amz != "" {
		parts = append(parts, amz)
	}
	parts = append(parts, resource)
	return strings.Join(parts, "\n")
}

// Signature 计算 Base64(HMAC-SHA1)
func (s Signer) Signature(stringToSign string) string {
	mac := hmac.New(sha1.New, []byte(s.SecretKey))
	mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Authorize 计算签名并把 Authorization 头写回 headers
func (s Signer) Authorize(method string, headers map[string]string, resource string) {
	sig := s.Signature(s.StringToSign(method, headers, resource))
	headers["Authorization"] = "AWS " + s.AccessKey + ":" + sig
}

// canonicalAmzHeaders 收集所有 x-amz-* 头：名字小写、按名字排序、"name:value" 以换行连接
func canonicalAmzHeaders(headers map[string]string) string {
	var names []string
	for name := range headers {
		if strings.HasPrefix(strings.ToLower(name), "x-amz-") {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, strings.ToLower(name)+":"+headers[name])
	}
	return strings.Join(lines, "\n")
}

// headerValue 大小写不敏感地查找头
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
