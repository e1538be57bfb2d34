package ginserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"passionautos/internal/app/dto"
	"passionautos/internal/chat"
	"passionautos/internal/infra/storage/s3"
)

type VehicleHTTP interface {
	Catalog(c *gin.Context)
	Get(c *gin.Context)
	UploadPhoto(c *gin.Context)
}

// VehicleStore is the listing persistence the handler needs.
type VehicleStore interface {
	Vehicle(ctx context.Context, id string) (chat.VehicleSummary, error)
	Vehicles(ctx context.Context) ([]chat.VehicleSummary, error)
	AddVehicleImage(ctx context.Context, id, url string) error
}

type VehicleHandler struct {
	Store    VehicleStore
	Uploader s3.Uploader
	Logger   *slog.Logger
}

func (h VehicleHandler) Catalog(c *gin.Context) {
	vehicles, err := h.Store.Vehicles(c.Request.Context())
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewVehicleList(vehicles))
}

func (h VehicleHandler) Get(c *gin.Context) {
	vehicle, err := h.Store.Vehicle(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewVehicle(vehicle))
}

// UploadPhoto accepts a multipart "photo" part, stores it, and appends the
// public URL to the vehicle's image list. Only the owner may upload.
func (h VehicleHandler) UploadPhoto(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "photo storage unavailable"})
		return
	}
	ctx := c.Request.Context()
	vehicleID := c.Param("id")
	vehicle, err := h.Store.Vehicle(ctx, vehicleID)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	if vehicle.OwnerID != p.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the owner can add photos"})
		return
	}

	fileHeader, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read photo"})
		return
	}
	defer file.Close()

	key := fmt.Sprintf("vehicles/%s/%s%s", vehicleID, uuid.NewString(), strings.ToLower(path.Ext(fileHeader.Filename)))
	publicURL, err := h.Uploader.Upload(ctx, key, file, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("photo upload failed", "vehicle_id", vehicleID, "error", err)
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "photo upload failed"})
		return
	}
	if err := h.Store.AddVehicleImage(ctx, vehicleID, publicURL); err != nil {
		h.respondStoreError(c, err)
		return
	}

	updated, err := h.Store.Vehicle(ctx, vehicleID)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.VehiclePhotoUploadResult{
		VehicleID: vehicleID,
		Images:    append([]string(nil), updated.Images...),
	})
}

func (h VehicleHandler) respondStoreError(c *gin.Context, err error) {
	if errors.Is(err, chat.ErrVehicleNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if h.Logger != nil {
		h.Logger.Error("vehicle operation failed", "error", err)
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

var _ VehicleHTTP = (*VehicleHandler)(nil)
