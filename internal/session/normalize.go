package session

// 这些字段会被显式映射到 Details，其余字段原样进入 Extra。
var mappedFields = map[string]struct{}{
	"id":           {},
	"user_id":      {},
	"email":        {},
	"name":         {},
	"display_name": {},
	"role":         {},

	FieldOrgName:   {},
	FieldOrgID:     {},
	FieldAppID:     {},
	FieldIsAdmin:   {},
	FieldCSRFToken: {},
	FieldZCode:     {},
}

// Normalize 把合并了派生字段的原始用户记录转换为会话详情；纯函数，不修改入参。
// EstablishedAt 由调用方在提交时填写。
func Normalize(raw RawUserRecord) Details {
	d := Details{
		ID:          raw.String("id"),
		Email:       raw.Email(),
		Name:        raw.String("name"),
		DisplayName: raw.String("display_name"),
		Role:        raw.String("role"),

		OrgName: raw.String(FieldOrgName),
		OrgID:   raw.String(FieldOrgID),
		AppID:   raw.String(FieldAppID),
		IsAdmin: raw.Bool(FieldIsAdmin),

		CSRFToken: raw.String(FieldCSRFToken),
		ZCode:     raw.String(FieldZCode),
	}
	if d.ID == "" {
		d.ID = raw.String("user_id")
	}
	if d.DisplayName == "" {
		d.DisplayName = d.Name
	}
	if d.DisplayName == "" {
		d.DisplayName = d.Email
	}

	for k, v := range raw {
		if _, ok := mappedFields[k]; ok {
			continue
		}
		if d.Extra == nil {
			d.Extra = make(map[string]any)
		}
		d.Extra[k] = v
	}
	return d
}
