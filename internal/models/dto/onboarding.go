package dto

import "github.com/hongminglow/storefront-be/internal/models"

type OnboardRequest struct {
	Roles        []int64 `json:"roles"`
	StoreName    string  `json:"storeName"`
	StoreAddress string  `json:"storeAddress"`
	StoreType    string  `json:"storeType"`
	StoreURL     string  `json:"storeUrl"`
}

type ProfileResponse struct {
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Onboarded   bool   `json:"onboarded"`
	Role        *int64 `json:"role"`
}

type StoreResponse struct {
	Store models.Store `json:"store"`
}

type UpdateTemplateRequest struct {
	TemplateName string `json:"templateName"`
}
