package domain

// User is the profile document. Everything except ID is stored as the
// document body; Gallery is never nil so it always encodes as a JSON array.
type User struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Phone   string   `json:"phone,omitempty"`
	Address string   `json:"address,omitempty"`
	Avatar  string   `json:"avatar,omitempty"`
	Gallery []string `json:"gallery"`
}

// Clone returns a deep copy so stores never share the gallery slice with callers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Gallery = append(make([]string, 0, len(u.Gallery)), u.Gallery...)
	return &c
}

type CreateUserRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}
