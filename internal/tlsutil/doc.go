// Package tlsutil 为出站 HTTP 客户端提供统一的 TLS 加固（TLS 1.2+，仅 AEAD 密码套件）。
// 远程规范拉取、生成与嵌入后端使用 SecureHTTPClient；CRM 客户端使用
// NewHTTPClient，可加载自托管 CRM 的私有 CA。
package tlsutil
