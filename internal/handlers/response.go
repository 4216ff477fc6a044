package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/example/skinai/internal/preprocess"
	"github.com/example/skinai/internal/usecase"
)

func meta() gin.H {
	return gin.H{"api_version": APIVersion, "img_size": []int{preprocess.InputSize, preprocess.InputSize}}
}

func predictionBody(pred *usecase.Prediction) gin.H {
	return gin.H{
		"ok":               true,
		"request_id":       pred.RequestID,
		"status":           pred.Status,
		"diagnosis":        pred.Diagnosis,
		"confidence":       pred.Confidence,
		"class_index":      pred.ClassIndex,
		"gap_top1_top2":    pred.Gap,
		"top3":             pred.Top3,
		"uncertain_reason": pred.Uncertainty,
		"message":          pred.Advisory,
		"quality":          pred.Quality,
		"meta":             meta(),
	}
}

func debugBody(pred *usecase.Prediction) gin.H {
	return gin.H{
		"ok":         true,
		"request_id": pred.RequestID,
		"status":     pred.Status,
		"best": gin.H{
			"index": pred.ClassIndex,
			"label": pred.Diagnosis,
			"score": pred.Confidence,
		},
		"gap_top1_top2":    pred.Gap,
		"ranked_all":       pred.Ranking,
		"uncertain_reason": pred.Uncertainty,
		"message":          pred.Advisory,
		"quality":          pred.Quality,
		"meta":             meta(),
	}
}

func badImageBody(pred *usecase.Prediction, q preprocess.QualityPolicy) gin.H {
	return gin.H{
		"ok":         true,
		"request_id": pred.RequestID,
		"status":     pred.Status,
		"diagnosis":  pred.Diagnosis,
		"confidence": 0.0,
		"message":    pred.Advisory,
		"details":    pred.Details,
		"quality": gin.H{
			"w":    pred.Quality.Width,
			"h":    pred.Quality.Height,
			"tier": pred.Quality.Tier,
			"min":  []int{q.MinWidth, q.MinHeight},
		},
		"meta": gin.H{"api_version": APIVersion},
	}
}
