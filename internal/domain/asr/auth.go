package asr

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// authURL 生成讯飞实时转写的鉴权URL。
// 签名规则: signa = base64(HmacSHA1(MD5(appid+ts), apiKey))
func authURL(base, appID, apiKey, lang string, now time.Time) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("解析转写服务地址失败: %v", err)
	}

	ts := strconv.FormatInt(now.Unix(), 10)
	digest := md5.Sum([]byte(appID + ts))
	signa := fmt.Sprintf("%x", digest)

	mac := hmac.New(sha1.New, []byte(apiKey))
	mac.Write([]byte(signa))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	params := url.Values{}
	params.Set("appid", appID)
	params.Set("ts", ts)
	params.Set("signa", signature)
	if lang != "" {
		params.Set("lang", lang)
	}

	u.RawQuery = params.Encode()
	return u.String(), nil
}
