package server

// SessionCookieName 是前置服务自身的会话 cookie（只保存浏览器会话 id）。
//
// 它与后端的 sessionid/csrftoken 共享同一域名，名字必须与后端 cookie 区分，
// 否则 bootstrap 转发 cookie 时会把它当作后端 cookie。
const SessionCookieName = "orgsession_session"
