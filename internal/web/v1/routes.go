package v1

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the user endpoints on r.
func RegisterRoutes(r gin.IRoutes, h *UserHandler) {
	r.POST("/users", h.CreateUser)
	r.GET("/users/:id", h.GetUser)
	r.POST("/users/:id/avatar", h.UploadAvatar)
	r.POST("/users/:id/gallery", h.UploadGallery)
}
