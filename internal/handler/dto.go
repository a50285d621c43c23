package handler

import "github.com/iliyamo/webshop-accounts/internal/model"

// userResponse is the public projection of an account.  It has no
// password field.
type userResponse struct {
	ID          uint64           `json:"id"`
	Email       string           `json:"email"`
	Status      model.Status     `json:"status"`
	Verified    bool             `json:"verified"`
	Resettable  bool             `json:"resettable"`
	Registered  int64            `json:"registered"`
	LastLogin   *int64           `json:"last_login,omitempty"`
	ForceLogout uint32           `json:"force_logout"`
	Role        model.Role       `json:"role"`
	Details     *detailsResponse `json:"details,omitempty"`
}

type detailsResponse struct {
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	Address    *string `json:"address,omitempty"`
	City       *string `json:"city,omitempty"`
	State      *string `json:"state,omitempty"`
	Country    *string `json:"country,omitempty"`
	PostalCode *string `json:"postal_code,omitempty"`
	Phone      *string `json:"phone,omitempty"`
}

func newUserResponse(a *model.Account) userResponse {
	out := userResponse{
		ID:          a.ID,
		Email:       a.Email,
		Status:      a.Status,
		Verified:    a.Verified,
		Resettable:  a.Resettable,
		Registered:  a.Registered.Unix(),
		ForceLogout: a.ForceLogout,
		Role:        a.Role,
	}
	if a.LastLogin != nil {
		ts := a.LastLogin.Unix()
		out.LastLogin = &ts
	}
	if p := a.Profile; p != nil {
		out.Details = &detailsResponse{
			FirstName:  p.FirstName,
			LastName:   p.LastName,
			Address:    p.Address,
			City:       p.City,
			State:      p.State,
			Country:    p.Country,
			PostalCode: p.PostalCode,
			Phone:      p.Phone,
		}
	}
	return out
}

type userData struct {
	User userResponse `json:"user"`
}

type loginData struct {
	User      userResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt int64        `json:"expires_at"`
}

type listData struct {
	Users []userResponse `json:"users"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}
