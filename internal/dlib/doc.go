// Package dlib is an in-process face backend built on dlib through go-face.
// It is compiled only with the dlib build tag and needs the dlib models
// (shape_predictor_5_face_landmarks.dat, dlib_face_recognition_resnet_model_v1.dat,
// mmod_human_face_detector.dat) in the models directory.
package dlib
